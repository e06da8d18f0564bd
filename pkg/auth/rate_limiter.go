package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// TokenBucketLimiter implements token bucket rate limiting in process memory
type TokenBucketLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	idleAfter  time.Duration
	now        func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucketLimiter creates a limiter that allows bursts of maxTokens and
// refills the whole bucket over window. Idle buckets are swept every
// cleanupInterval until Close.
func NewTokenBucketLimiter(maxTokens int, window, cleanupInterval time.Duration) *TokenBucketLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	refill := window / time.Duration(maxTokens)
	if refill <= 0 {
		refill = time.Millisecond
	}

	limiter := &TokenBucketLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  maxTokens,
		refillRate: refill,
		idleAfter:  window * 2,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	go limiter.cleanup(cleanupInterval)

	return limiter
}

// Allow checks if a request is allowed
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: l.maxTokens, lastRefill: now}
		l.buckets[key] = b
	}

	// Refill tokens based on time elapsed, keeping the remainder
	if tokensToAdd := int(now.Sub(b.lastRefill) / l.refillRate); tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, l.maxTokens)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * l.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Reset resets the rate limit for a key
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

// Close stops the cleanup goroutine
func (l *TokenBucketLimiter) Close() error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

// cleanup removes idle buckets periodically
func (l *TokenBucketLimiter) cleanup(interval time.Duration) {
	defer close(l.done)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, b := range l.buckets {
				if now.Sub(b.lastRefill) > l.idleAfter {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
