package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/cache"
	pkgerrors "carechat/pkg/errors"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func collect(t *testing.T, stream <-chan ports.Fragment) ([]string, error) {
	t.Helper()
	var chunks []string
	for frag := range stream {
		if frag.Err != nil {
			return chunks, frag.Err
		}
		chunks = append(chunks, frag.Text)
	}
	return chunks, nil
}

func TestScriptedBackend_ReplaysInOrder(t *testing.T) {
	b := NewScriptedBackend("test", true)
	b.Enqueue(Script{Chunks: []string{"Hel", "lo", "!"}})

	chunks, err := collect(t, b.StreamGenerate(context.Background(), "Hi", valueobjects.SessionKeyFromString("session-1")))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", "!"}, chunks)
	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Hi", calls[0].Prompt)
	assert.Equal(t, "session-1", calls[0].SessionKey.String())
}

func TestScriptedBackend_Echo(t *testing.T) {
	b := NewScriptedBackend("test", true)

	out, err := b.Generate(context.Background(), "context line\nHow are you?", valueobjects.SessionKey{})

	require.NoError(t, err)
	assert.Equal(t, "You said: How are you?", out)
}

func TestScriptedBackend_ErrorIsBackendUnavailable(t *testing.T) {
	b := NewScriptedBackend("test", true)
	b.When("boom", Script{Chunks: []string{"Par"}, Err: errors.New("connection reset")})

	chunks, err := collect(t, b.StreamGenerate(context.Background(), "boom", valueobjects.SessionKey{}))

	assert.Equal(t, []string{"Par"}, chunks)
	assert.True(t, pkgerrors.IsBackendUnavailable(err))
}

func TestScriptedBackend_HangEndsWithContext(t *testing.T) {
	b := NewScriptedBackend("test", true)
	b.Enqueue(Script{Chunks: []string{"a"}, Hang: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Generate(ctx, "x", valueobjects.SessionKey{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerBackend_OpensAfterFailures(t *testing.T) {
	inner := NewScriptedBackend("flaky", true)
	for i := 0; i < 5; i++ {
		inner.Enqueue(Script{Err: errors.New("503")})
	}
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 3
	b := NewBreakerBackend(inner, cfg, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), "x", valueobjects.SessionKey{})
		require.Error(t, err)
	}
	_, err := b.Generate(context.Background(), "x", valueobjects.SessionKey{})

	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.True(t, pkgerrors.IsBackendUnavailable(err))
	assert.Len(t, inner.Calls(), 3)
}

func TestBreakerBackend_CancellationIsNotAFailure(t *testing.T) {
	inner := NewScriptedBackend("slow", true)
	cfg := DefaultBreakerConfig()
	cfg.MinRequests = 2
	b := NewBreakerBackend(inner, cfg, zap.NewNop())

	for i := 0; i < 4; i++ {
		inner.Enqueue(Script{Chunks: []string{"a"}, Hang: true})
		ctx, cancel := context.WithCancel(context.Background())
		stream := b.StreamGenerate(ctx, "x", valueobjects.SessionKey{})
		<-stream
		cancel()
		for range stream {
		}
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerBackend_PassesChunksThrough(t *testing.T) {
	inner := NewScriptedBackend("ok", false)
	inner.Enqueue(Script{Chunks: []string{"a", "b"}})
	b := NewBreakerBackend(inner, DefaultBreakerConfig(), zap.NewNop())

	out, err := b.Generate(context.Background(), "x", valueobjects.SessionKey{})

	require.NoError(t, err)
	assert.Equal(t, "ab", out)
	assert.False(t, b.Stateless())
	assert.Equal(t, "ok", b.Name())
}

func TestAssistantsBackend_RunLifecycle(t *testing.T) {
	var threads, polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			atomic.AddInt32(&threads, 1)
			json.NewEncoder(w).Encode(map[string]string{"id": "thread_1"})
		case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/messages":
			json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
		case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/runs":
			json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/runs/run_1":
			status := "in_progress"
			if atomic.AddInt32(&polls, 1) >= 2 {
				status = "completed"
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": status})
		case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/messages":
			assert.Equal(t, "desc", r.URL.Query().Get("order"))
			w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"Take a short walk."}}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	threadCache := cache.NewInMemoryCache(0)
	b := NewAssistantsBackend(AssistantsConfig{
		BaseURL:      srv.URL,
		APIKey:       "key",
		AssistantID:  "asst_1",
		PollInterval: time.Millisecond,
	}, srv.Client(), threadCache, zap.NewNop())

	first, err := b.Generate(context.Background(), "I feel stuck", valueobjects.SessionKeyFromString("alice"))
	require.NoError(t, err)
	atomic.StoreInt32(&polls, 0)
	_, err = b.Generate(context.Background(), "Again", valueobjects.SessionKeyFromString("alice"))
	require.NoError(t, err)

	assert.Equal(t, "Take a short walk.", first)
	assert.Equal(t, int32(1), atomic.LoadInt32(&threads))
	srv.Client().CloseIdleConnections()
}

func TestAssistantsBackend_FailedRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/runs"):
			w.Write([]byte(`{"id":"run_1","status":"failed","last_error":{"message":"rate limited"}}`))
		case r.URL.Path == "/threads":
			w.Write([]byte(`{"id":"thread_1"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	b := NewAssistantsBackend(AssistantsConfig{BaseURL: srv.URL}, srv.Client(), cache.NewInMemoryCache(0), zap.NewNop())

	_, err := b.Generate(context.Background(), "hello", valueobjects.SessionKey{})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsBackendUnavailable(err))
	assert.Contains(t, err.Error(), "rate limited")
	srv.Client().CloseIdleConnections()
}

func TestAssistantsBackend_CancelledCallerCancelsRun(t *testing.T) {
	// Arrange
	var cancelled int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/threads":
			w.Write([]byte(`{"id":"thread_1"}`))
		case strings.HasSuffix(r.URL.Path, "/runs"):
			w.Write([]byte(`{"id":"run_1","status":"queued"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/runs/run_1/cancel":
			atomic.StoreInt32(&cancelled, 1)
			w.Write([]byte(`{"id":"run_1","status":"cancelling"}`))
		case r.URL.Path == "/threads/thread_1/runs/run_1":
			w.Write([]byte(`{"id":"run_1","status":"in_progress"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	b := NewAssistantsBackend(AssistantsConfig{BaseURL: srv.URL, PollInterval: time.Millisecond}, srv.Client(), cache.NewInMemoryCache(0), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Act
	_, err := b.Generate(ctx, "hello", valueobjects.SessionKeyFromString("alice"))

	// Assert
	require.Error(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&cancelled) == 1 }, time.Second, 5*time.Millisecond)
	srv.Client().CloseIdleConnections()
}
