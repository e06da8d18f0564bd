package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
)

// windowKey names the counter of the fixed window that contains now
func windowKey(prefix, key string, now time.Time, window time.Duration) (string, time.Time) {
	start := now.Truncate(window)
	return fmt.Sprintf("%s#%s#%d", prefix, key, start.Unix()), start.Add(window)
}

// UpdateItemAPI is the DynamoDB call the window limiter needs
type UpdateItemAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoWindowLimiter counts requests per fixed window in DynamoDB so the
// limit holds across Lambda invocations
type DynamoWindowLimiter struct {
	client    UpdateItemAPI
	tableName string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewDynamoWindowLimiter creates a DynamoDB-backed fixed window limiter
func NewDynamoWindowLimiter(client UpdateItemAPI, tableName string, limit int, window time.Duration) *DynamoWindowLimiter {
	return &DynamoWindowLimiter{
		client:    client,
		tableName: tableName,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Allow increments the window counter only while it is below the limit.
// Storage errors fail open and are returned for logging.
func (r *DynamoWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	pk, windowEnd := windowKey("RATELIMIT", key, r.now(), r.window)

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: "WINDOW"},
		},
		UpdateExpression:    aws.String("SET #count = if_not_exists(#count, :zero) + :incr, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "Count",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":incr":  &types.AttributeValueMemberN{Value: "1"},
			":limit": &types.AttributeValueMemberN{Value: strconv.Itoa(r.limit)},
			":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Add(time.Hour).Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return true, fmt.Errorf("rate limiter error (failing open): %w", err)
	}
	return true, nil
}

// Reset clears the current window for a key
func (r *DynamoWindowLimiter) Reset(ctx context.Context, key string) error {
	pk, _ := windowKey("RATELIMIT", key, r.now(), r.window)
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: "WINDOW"},
		},
	})
	return err
}

// RedisWindowLimiter counts requests per fixed window in Redis so every API
// replica shares the limit
type RedisWindowLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisWindowLimiter creates a Redis-backed fixed window limiter
func NewRedisWindowLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisWindowLimiter {
	return &RedisWindowLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow increments the window counter. Storage errors fail open and are
// returned for logging.
func (r *RedisWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k, _ := windowKey("ratelimit", key, r.now(), r.window)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limiter error (failing open): %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}

// Reset clears the current window for a key
func (r *RedisWindowLimiter) Reset(ctx context.Context, key string) error {
	k, _ := windowKey("ratelimit", key, r.now(), r.window)
	return r.client.Del(ctx, k).Err()
}
