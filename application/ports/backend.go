package ports

import (
	"context"
	"strings"

	"carechat/domain/core/valueobjects"
)

// Fragment is one element of a backend stream. A fragment with a non-nil Err
// is terminal: the channel is closed right after it.
type Fragment struct {
	Text string
	Err  error
}

// Backend is the uniform capability interface over generation providers
type Backend interface {
	// Name identifies the backend in logs and metrics
	Name() string

	// Stateless reports whether the backend keeps no conversation state of
	// its own, so history must be embedded in the prompt
	Stateless() bool

	// StreamGenerate starts generation and returns a finite, non-restartable
	// fragment stream in emission order. The channel is always closed.
	// Cancelling ctx stops generation.
	StreamGenerate(ctx context.Context, prompt string, key valueobjects.SessionKey) <-chan Fragment

	// Generate is StreamGenerate drained and concatenated
	Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error)
}

// Drain concatenates a fragment stream. It returns the first error seen, or
// ctx.Err() if the context ends before the stream does.
func Drain(ctx context.Context, stream <-chan Fragment) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case frag, ok := <-stream:
			if !ok {
				return sb.String(), nil
			}
			if frag.Err != nil {
				return "", frag.Err
			}
			sb.WriteString(frag.Text)
		}
	}
}
