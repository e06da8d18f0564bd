package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"carechat/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DistributedLock provides distributed locking using DynamoDB conditional writes
type DistributedLock struct {
	client      Client
	tableName   string
	ttl         time.Duration
	waitTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewDistributedLock creates a new distributed lock. ttl bounds how long a
// crashed holder can block others; waitTimeout bounds Acquire.
func NewDistributedLock(client Client, tableName string, ttl, waitTimeout time.Duration, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:      client,
		tableName:   tableName,
		ttl:         ttl,
		waitTimeout: waitTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

func lockKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "LOCK#" + key},
		"SK": &types.AttributeValueMemberS{Value: "LOCK"},
	}
}

var errContended = errors.New("lock contended")

func (dl *DistributedLock) tryAcquire(ctx context.Context, key, lockID string) error {
	now := dl.now()
	expiresAt := now.Add(dl.ttl)

	item := lockKey(key)
	item["LockID"] = &types.AttributeValueMemberS{Value: lockID}
	item["AcquiredAt"] = &types.AttributeValueMemberS{Value: formatTime(now)}
	item["ExpiresAt"] = &types.AttributeValueMemberS{Value: formatTime(expiresAt)}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)}

	_, err := dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dl.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: formatTime(now)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return errContended
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Acquire implements ports.Locker. It retries with backoff until the wait
// timeout, then returns ports.ErrLockHeld.
func (dl *DistributedLock) Acquire(ctx context.Context, key string) (ports.Lease, error) {
	lockID := uuid.New().String()
	deadline := time.NewTimer(dl.waitTimeout)
	defer deadline.Stop()
	retryInterval := 50 * time.Millisecond

	for {
		err := dl.tryAcquire(ctx, key, lockID)
		if err == nil {
			dl.logger.Debug("Lock acquired", zap.String("key", key), zap.String("lockID", lockID))
			return &lease{lock: dl, key: key, lockID: lockID}, nil
		}
		if !errors.Is(err, errContended) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ports.ErrLockHeld
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

func (dl *DistributedLock) release(ctx context.Context, key, lockID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(dl.tableName),
		Key:                 lockKey(key),
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			dl.logger.Warn("Lock expired before release", zap.String("key", key), zap.String("lockID", lockID))
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

type lease struct {
	lock   *DistributedLock
	key    string
	lockID string
	once   sync.Once
	err    error
}

// Release deletes the lock item if this lease still owns it
func (l *lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.lock.release(ctx, l.key, l.lockID)
	})
	return l.err
}
