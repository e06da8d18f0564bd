package cache

import (
	"context"
	"fmt"
	"time"

	"carechat/application/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker provides cross-process locks with SET NX PX. A lease expires
// after ttl even if its holder dies.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisLocker creates a locker. timeout bounds how long Acquire retries.
func NewRedisLocker(client *redis.Client, ttl, timeout time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, timeout: timeout, logger: logger}
}

// Acquire implements ports.Locker
func (l *RedisLocker) Acquire(ctx context.Context, key string) (ports.Lease, error) {
	lockKey := "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)
	retryInterval := 50 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLease{client: l.client, key: lockKey, token: token, logger: l.logger}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ports.ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = retryInterval * 3 / 2
			}
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	logger *zap.Logger
}

// Release implements ports.Lease
func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		l.logger.Warn("Lock expired before release", zap.String("key", l.key))
	}
	return nil
}
