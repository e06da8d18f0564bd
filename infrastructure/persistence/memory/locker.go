package memory

import (
	"context"
	"sync"
	"time"

	"carechat/application/ports"
)

// Locker is a keyed mutex for a single process. A key is held by at most one
// lease at a time; waiters are woken in no particular order.
type Locker struct {
	mu      sync.Mutex
	held    map[string]chan struct{}
	timeout time.Duration
}

// NewLocker creates a locker. timeout bounds how long Acquire waits; zero
// waits until ctx ends.
func NewLocker(timeout time.Duration) *Locker {
	return &Locker{held: make(map[string]chan struct{}), timeout: timeout}
}

// Acquire implements ports.Locker
func (l *Locker) Acquire(ctx context.Context, key string) (ports.Lease, error) {
	var expired <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return &lease{locker: l, key: key}, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-expired:
			return nil, ports.ErrLockHeld
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type lease struct {
	locker *Locker
	key    string
	once   sync.Once
}

// Release implements ports.Lease. Releasing twice is a no-op.
func (l *lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		if ch, ok := l.locker.held[l.key]; ok {
			delete(l.locker.held, l.key)
			close(ch)
		}
	})
	return nil
}
