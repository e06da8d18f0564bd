package llm

import (
	"context"
	"errors"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds circuit breaker settings for a backend
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// BreakerBackend stops calling a failing backend for a while. A turn that
// arrives while the breaker is open fails immediately with BackendUnavailable.
// Cancelled streams are not counted against the backend.
type BreakerBackend struct {
	inner   ports.Backend
	breaker *gobreaker.TwoStepCircuitBreaker
}

// NewBreakerBackend wraps inner
func NewBreakerBackend(inner ports.Backend, cfg BreakerConfig, logger *zap.Logger) *BreakerBackend {
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Backend circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerBackend{inner: inner, breaker: cb}
}

func (b *BreakerBackend) Name() string    { return b.inner.Name() }
func (b *BreakerBackend) Stateless() bool { return b.inner.Stateless() }

// State exposes the breaker state for health reporting
func (b *BreakerBackend) State() gobreaker.State { return b.breaker.State() }

// StreamGenerate implements ports.Backend
func (b *BreakerBackend) StreamGenerate(ctx context.Context, prompt string, key valueobjects.SessionKey) <-chan ports.Fragment {
	done, err := b.breaker.Allow()
	if err != nil {
		ch := make(chan ports.Fragment, 1)
		ch <- ports.Fragment{Err: pkgerrors.NewBackendUnavailableError(b.Name(), err)}
		close(ch)
		return ch
	}

	upstream := b.inner.StreamGenerate(ctx, prompt, key)
	ch := make(chan ports.Fragment)

	go func() {
		defer close(ch)

		// The outcome is recorded before the terminal fragment is forwarded,
		// so a caller that saw the end of a stream sees the updated breaker.
		settled := false
		settle := func(err error) {
			if settled {
				return
			}
			settled = true
			if !errors.Is(err, context.Canceled) {
				done(err == nil)
			}
		}

		for frag := range upstream {
			if frag.Err != nil {
				settle(frag.Err)
			}
			select {
			case ch <- frag:
			case <-ctx.Done():
				settle(ctx.Err())
				// Let the producer observe ctx and close.
				for range upstream {
				}
				return
			}
		}
		settle(ctx.Err())
	}()
	return ch
}

// Generate implements ports.Backend
func (b *BreakerBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}
