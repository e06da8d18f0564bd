// Package cache holds the byte caches behind ports.Cache and the cached
// profile reader built on them
package cache

import (
	"context"
	"sync"
	"time"

	"carechat/application/ports"
)

// InMemoryCache is a process-local TTL cache
type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	stop  chan struct{}
	once  sync.Once
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache creates a cache that sweeps expired items every interval
// until Close is called
func NewInMemoryCache(interval time.Duration) *InMemoryCache {
	c := &InMemoryCache{
		items: make(map[string]cacheItem),
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanupExpired(interval)
	}
	return c
}

// Get retrieves a value from cache
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		return nil, ports.ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value with TTL
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a value from cache
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Close stops the sweeper
func (c *InMemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *InMemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
