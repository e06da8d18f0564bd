package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"carechat/application/ports"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fragments(frags ...ports.Fragment) <-chan ports.Fragment {
	ch := make(chan ports.Fragment, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return ch
}

func TestRelay_Forward(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		stream     <-chan ports.Fragment
		wantEvents []StreamEvent
		wantText   string
		wantErr    error
	}{
		{
			name:       "chunks then done",
			stream:     fragments(ports.Fragment{Text: "a"}, ports.Fragment{Text: ""}, ports.Fragment{Text: "b"}),
			wantEvents: []StreamEvent{ChunkEvent("a"), ChunkEvent("b"), DoneEvent()},
			wantText:   "ab",
		},
		{
			name:       "empty stream",
			stream:     fragments(),
			wantEvents: []StreamEvent{DoneEvent()},
		},
		{
			name:       "error ends stream",
			stream:     fragments(ports.Fragment{Text: "a"}, ports.Fragment{Err: boom}, ports.Fragment{Text: "never"}),
			wantEvents: []StreamEvent{ChunkEvent("a"), ErrorEvent("sorry")},
			wantErr:    boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := NewRelay(func(error) string { return "sorry" }, zap.NewNop())
			sink := &recordingSink{}

			result := relay.Forward(context.Background(), tt.stream, sink)

			assert.Equal(t, tt.wantEvents, sink.Events())
			assert.ErrorIs(t, result.Err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, result.Err)
				assert.Equal(t, tt.wantText, result.Text)
				assert.True(t, result.Completed())
			}
		})
	}
}

func TestRelay_ContextEndsBeforeStream(t *testing.T) {
	relay := NewRelay(nil, zap.NewNop())
	stream := make(chan ports.Fragment)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	sink := &recordingSink{}

	result := relay.Forward(ctx, stream, sink)

	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, []StreamEvent{ErrorEvent(context.DeadlineExceeded.Error())}, sink.Events())
	assert.False(t, result.Completed())
}

func TestRelay_ClosedAfterCancelIsFailure(t *testing.T) {
	relay := NewRelay(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}

	result := relay.Forward(ctx, fragments(), sink)

	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Len(t, sink.Events(), 1)
	assert.Equal(t, EventError, sink.Events()[0].Kind)
}

func TestRelay_SinkFailureStopsPulling(t *testing.T) {
	relay := NewRelay(nil, zap.NewNop())
	sink := &recordingSink{failAfter: 1}

	result := relay.Forward(context.Background(), fragments(ports.Fragment{Text: "a"}, ports.Fragment{Text: "b"}), sink)

	assert.ErrorIs(t, result.SinkErr, errCallerGone)
	assert.Equal(t, 1, result.Chunks)
	assert.False(t, result.Completed())
}
