package inprocess

import (
	"context"
	"sync"
	"testing"
	"time"

	"carechat/application/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRunner struct {
	mu    sync.Mutex
	jobs  []ports.ExtractionJob
	block chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, job ports.ExtractionJob) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestPool_RunsDispatchedJobs(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewPool(runner, 2, 8, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Dispatch(context.Background(), ports.ExtractionJob{Owner: "u"}))
	}
	require.NoError(t, pool.Close(context.Background()))

	assert.Equal(t, 5, runner.count())
}

func TestPool_FullQueueRejects(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	pool := NewPool(runner, 1, 1, zap.NewNop())

	// One job occupies the worker, one fills the queue.
	require.NoError(t, pool.Dispatch(context.Background(), ports.ExtractionJob{}))
	require.Eventually(t, func() bool {
		return pool.Dispatch(context.Background(), ports.ExtractionJob{}) == nil
	}, time.Second, 5*time.Millisecond)

	err := pool.Dispatch(context.Background(), ports.ExtractionJob{})

	assert.ErrorIs(t, err, ErrQueueFull)
	close(runner.block)
	require.NoError(t, pool.Close(context.Background()))
	assert.Equal(t, 2, runner.count())
}

func TestPool_DispatchAfterClose(t *testing.T) {
	pool := NewPool(&recordingRunner{}, 1, 1, zap.NewNop())
	require.NoError(t, pool.Close(context.Background()))

	err := pool.Dispatch(context.Background(), ports.ExtractionJob{})

	assert.ErrorIs(t, err, ErrClosed)
}

// panicRunner panics on the boom owner and records the rest
type panicRunner struct {
	recordingRunner
	boom string
}

func (r *panicRunner) Run(ctx context.Context, job ports.ExtractionJob) error {
	if job.Owner == r.boom {
		panic("extraction blew up")
	}
	return r.recordingRunner.Run(ctx, job)
}

func TestPool_PanickingJobDoesNotStopWorker(t *testing.T) {
	// Arrange
	runner := &panicRunner{boom: "bad"}
	pool := NewPool(runner, 1, 4, zap.NewNop())

	// Act
	require.NoError(t, pool.Dispatch(context.Background(), ports.ExtractionJob{Owner: "bad"}))
	require.NoError(t, pool.Dispatch(context.Background(), ports.ExtractionJob{Owner: "good"}))
	require.NoError(t, pool.Close(context.Background()))

	// Assert
	assert.Equal(t, 1, runner.count())
}
