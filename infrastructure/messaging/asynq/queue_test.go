package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"carechat/application/ports"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, job ports.ExtractionJob) error

func (f runnerFunc) Run(ctx context.Context, job ports.ExtractionJob) error { return f(ctx, job) }

func TestHandler_DecodesJob(t *testing.T) {
	want := ports.ExtractionJob{Owner: "u1", ConversationID: "c1", UserMessage: "hi", AssistantReply: "hello", RequestedAt: time.Unix(5, 0).UTC()}
	payload, err := json.Marshal(want)
	require.NoError(t, err)
	var got ports.ExtractionJob
	h := Handler(runnerFunc(func(ctx context.Context, job ports.ExtractionJob) error {
		got = job
		return nil
	}))

	err = h(context.Background(), asynq.NewTask(TaskProfileExtract, payload))

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHandler_BadPayloadSkipsRetry(t *testing.T) {
	called := false
	h := Handler(runnerFunc(func(ctx context.Context, job ports.ExtractionJob) error {
		called = true
		return nil
	}))

	err := h(context.Background(), asynq.NewTask(TaskProfileExtract, []byte("{")))

	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.False(t, called)
}
