package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Connection is an API Gateway WebSocket connection and the identity verified
// when it was opened
type Connection struct {
	ConnectionID string `dynamodbav:"ConnectionID"`
	Identity     string `dynamodbav:"Identity,omitempty"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

// ConnectionRegistry tracks open WebSocket connections in their own table
type ConnectionRegistry struct {
	client    Client
	tableName string
	ttl       time.Duration
}

// NewConnectionRegistry creates a registry. Items expire after ttl even if
// the disconnect route never runs.
func NewConnectionRegistry(client Client, tableName string, ttl time.Duration) *ConnectionRegistry {
	return &ConnectionRegistry{client: client, tableName: tableName, ttl: ttl}
}

// Register records a new connection
func (r *ConnectionRegistry) Register(ctx context.Context, connectionID, identity string, now time.Time) error {
	av, err := attributevalue.MarshalMap(Connection{
		ConnectionID: connectionID,
		Identity:     identity,
		ConnectedAt:  formatTime(now),
		TTL:          now.Add(r.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	return nil
}

// Lookup returns the connection record, or nil when it is unknown
func (r *ConnectionRegistry) Lookup(ctx context.Context, connectionID string) (*Connection, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ConnectionID": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var conn Connection
	if err := attributevalue.UnmarshalMap(result.Item, &conn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}
	return &conn, nil
}

// Unregister removes a connection
func (r *ConnectionRegistry) Unregister(ctx context.Context, connectionID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"ConnectionID": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
