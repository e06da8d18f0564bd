// Package inprocess runs extraction jobs on a bounded worker pool inside the
// serving process
package inprocess

import (
	"context"
	"errors"
	"sync"

	"carechat/application/ports"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Dispatch when every slot is taken
var ErrQueueFull = errors.New("extraction queue full")

// ErrClosed is returned by Dispatch after Close
var ErrClosed = errors.New("extraction pool closed")

// Pool is an ExtractionDispatcher backed by goroutines. Jobs outlive the
// request that dispatched them; Close waits for queued jobs to finish.
type Pool struct {
	runner ports.ExtractionRunner
	jobs   chan ports.ExtractionJob
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines reading from a queue of size depth
func NewPool(runner ports.ExtractionRunner, workers, depth int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		runner: runner,
		jobs:   make(chan ports.ExtractionJob, depth),
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Dispatch implements ports.ExtractionDispatcher. It never blocks.
func (p *Pool) Dispatch(ctx context.Context, job ports.ExtractionJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the queue to drain or ctx to end
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

// run executes one job. A panicking runner is logged and the worker moves on.
func (p *Pool) run(job ports.ExtractionJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Profile extraction panicked",
				zap.String("conversationID", job.ConversationID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.runner.Run(context.Background(), job); err != nil {
		p.logger.Error("Profile extraction failed",
			zap.String("conversationID", job.ConversationID),
			zap.Error(err),
		)
	}
}
