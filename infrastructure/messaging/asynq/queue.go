// Package asynq runs profile extraction on a Redis-backed task queue
package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carechat/application/ports"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TaskProfileExtract is the task type of an extraction job
	TaskProfileExtract = "profile:extract"

	// QueueProfile is the queue extraction tasks are enqueued on
	QueueProfile = "profile"
)

// Dispatcher enqueues extraction jobs. Tasks are never retried.
type Dispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewDispatcher connects an asynq client to redisURL. timeout bounds each
// task on the worker side.
func NewDispatcher(redisURL string, timeout time.Duration) (*Dispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	return &Dispatcher{client: asynq.NewClient(opt), timeout: timeout}, nil
}

// Dispatch implements ports.ExtractionDispatcher
func (d *Dispatcher) Dispatch(ctx context.Context, job ports.ExtractionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueProfile),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	if _, err := d.client.EnqueueContext(ctx, asynq.NewTask(TaskProfileExtract, payload), opts...); err != nil {
		return fmt.Errorf("asynq: enqueue: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Server consumes extraction tasks
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer creates a worker server for redisURL that hands every task to
// runner
func NewServer(redisURL string, concurrency int, runner ports.ExtractionRunner, logger *zap.Logger) (*Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse REDIS_URL: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueProfile: 1},
		Logger:      logger.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Extraction task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	s := &Server{server: srv, mux: asynq.NewServeMux(), logger: logger}
	s.mux.HandleFunc(TaskProfileExtract, Handler(runner))
	return s, nil
}

// Handler adapts a runner to an asynq handler. Undecodable payloads are
// dropped with SkipRetry.
func Handler(runner ports.ExtractionRunner) func(ctx context.Context, t *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var job ports.ExtractionJob
		if err := json.Unmarshal(t.Payload(), &job); err != nil {
			return fmt.Errorf("decode extraction job: %v: %w", err, asynq.SkipRetry)
		}
		return runner.Run(ctx, job)
	}
}

// Run serves until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}
