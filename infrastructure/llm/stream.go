// Package llm holds the generation backends behind ports.Backend
package llm

import (
	"context"

	"carechat/application/ports"
	pkgerrors "carechat/pkg/errors"
)

// emitter writes fragments for a producer goroutine. Every send gives up
// when ctx ends so an abandoned stream never blocks its producer.
type emitter struct {
	ctx     context.Context
	ch      chan<- ports.Fragment
	backend string
}

func newStream(ctx context.Context, backend string) (chan ports.Fragment, emitter) {
	ch := make(chan ports.Fragment, 16)
	return ch, emitter{ctx: ctx, ch: ch, backend: backend}
}

// text sends a chunk and reports whether the consumer is still there
func (e emitter) text(s string) bool {
	if s == "" {
		return e.ctx.Err() == nil
	}
	select {
	case e.ch <- ports.Fragment{Text: s}:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// fail sends the terminal error. Provider errors are reported as
// BackendUnavailable; context errors pass through.
func (e emitter) fail(err error) {
	if e.ctx.Err() == nil && !pkgerrors.IsAppError(err) {
		err = pkgerrors.NewBackendUnavailableError(e.backend, err)
	}
	select {
	case e.ch <- ports.Fragment{Err: err}:
	case <-e.ctx.Done():
	}
}
