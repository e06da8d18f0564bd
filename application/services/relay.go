package services

import (
	"context"
	"strings"
	"time"

	"carechat/application/ports"

	"go.uber.org/zap"
)

// EventKind tags a StreamEvent
type EventKind string

const (
	EventChunk EventKind = "chunk"
	EventError EventKind = "error"
	EventDone  EventKind = "done"
)

// StreamEvent is one outbound frame of a turn. Exactly one error or done
// event ends every relayed stream.
type StreamEvent struct {
	Kind EventKind
	Text string
}

// ChunkEvent creates a chunk event
func ChunkEvent(text string) StreamEvent { return StreamEvent{Kind: EventChunk, Text: text} }

// ErrorEvent creates a terminal error event
func ErrorEvent(message string) StreamEvent { return StreamEvent{Kind: EventError, Text: message} }

// DoneEvent creates a terminal done event
func DoneEvent() StreamEvent { return StreamEvent{Kind: EventDone} }

// EventSink delivers stream events to the caller. An error from Send means the
// caller is gone.
type EventSink interface {
	Send(event StreamEvent) error
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(event StreamEvent) error

// Send implements EventSink
func (f EventSinkFunc) Send(event StreamEvent) error { return f(event) }

// RelayResult summarizes a relayed stream
type RelayResult struct {
	// Text is the concatenation of every chunk sent. Only meaningful when
	// Err is nil.
	Text string

	// Chunks is the number of chunk events delivered
	Chunks int

	// Err is the backend or context failure that ended the stream
	Err error

	// SinkErr is set when the caller could not be written to
	SinkErr error

	// FirstChunk is the latency until the first chunk was delivered
	FirstChunk time.Duration
}

// Completed reports whether the stream reached done
func (r RelayResult) Completed() bool {
	return r.Err == nil && r.SinkErr == nil
}

// Relay forwards a backend fragment stream to a caller while accumulating the
// full text
type Relay struct {
	errorMessage func(err error) string
	logger       *zap.Logger
}

// NewRelay creates a relay. errorMessage renders the text of the terminal
// error frame.
func NewRelay(errorMessage func(err error) string, logger *zap.Logger) *Relay {
	if errorMessage == nil {
		errorMessage = func(err error) string { return err.Error() }
	}
	return &Relay{errorMessage: errorMessage, logger: logger}
}

// Forward pulls fragments in order and sends each one on immediately. It stops
// pulling as soon as the backend fails, ctx ends, or the sink rejects a write.
// A stream that closes after ctx has ended counts as failed.
func (r *Relay) Forward(ctx context.Context, stream <-chan ports.Fragment, sink EventSink) RelayResult {
	var (
		acc    strings.Builder
		result RelayResult
		start  = time.Now()
	)

	for {
		select {
		case <-ctx.Done():
			return r.fail(sink, ctx.Err(), result)

		case frag, ok := <-stream:
			if !ok {
				if err := ctx.Err(); err != nil {
					return r.fail(sink, err, result)
				}
				if err := sink.Send(DoneEvent()); err != nil {
					r.logger.Debug("Caller gone before done frame", zap.Error(err))
				}
				result.Text = acc.String()
				return result
			}

			if frag.Err != nil {
				return r.fail(sink, frag.Err, result)
			}
			if frag.Text == "" {
				continue
			}

			if err := sink.Send(ChunkEvent(frag.Text)); err != nil {
				result.SinkErr = err
				return result
			}
			if result.Chunks == 0 {
				result.FirstChunk = time.Since(start)
			}
			result.Chunks++
			acc.WriteString(frag.Text)
		}
	}
}

func (r *Relay) fail(sink EventSink, cause error, result RelayResult) RelayResult {
	result.Err = cause
	if err := sink.Send(ErrorEvent(r.errorMessage(cause))); err != nil {
		result.SinkErr = err
	}
	return result
}
