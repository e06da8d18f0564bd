package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ConversationRepository stores conversations in the single table. Owned
// conversations are projected onto GSI1 keyed by owner, sorted by updatedAt.
type ConversationRepository struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(client Client, tableName string, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{client: client, tableName: tableName, logger: logger}
}

// conversationItem represents the DynamoDB item structure for a conversation
type conversationItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	GSI1PK         string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK         string `dynamodbav:"GSI1SK,omitempty"`
	EntityType     string `dynamodbav:"EntityType"`
	ConversationID string `dynamodbav:"ConversationID"`
	Owner          string `dynamodbav:"Owner"`
	SessionKey     string `dynamodbav:"SessionKey"`
	Active         bool   `dynamodbav:"Active"`
	CreatedAt      string `dynamodbav:"CreatedAt"`
	UpdatedAt      string `dynamodbav:"UpdatedAt"`
	Version        int    `dynamodbav:"Version"`
}

// Save persists a conversation
func (r *ConversationRepository) Save(ctx context.Context, c *entities.Conversation) error {
	item := conversationItem{
		PK:             conversationPK(c.ID().String()),
		SK:             "META",
		EntityType:     "CONVERSATION",
		ConversationID: c.ID().String(),
		Owner:          c.Owner().String(),
		SessionKey:     c.SessionKey().String(),
		Active:         c.IsActive(),
		CreatedAt:      formatTime(c.CreatedAt()),
		UpdatedAt:      formatTime(c.UpdatedAt()),
		Version:        c.Version(),
	}
	if !c.Owner().IsGuest() {
		item.GSI1PK = ownerPK(c.Owner().String())
		item.GSI1SK = item.UpdatedAt
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation by its ID
func (r *ConversationRepository) GetByID(ctx context.Context, id valueobjects.ConversationID) (*entities.Conversation, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPK(id.String())},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if result.Item == nil {
		return nil, ports.ErrNotFound
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return item.toEntity()
}

// ListByOwner queries GSI1 newest first
func (r *ConversationRepository) ListByOwner(ctx context.Context, owner valueobjects.Identity) ([]*entities.Conversation, error) {
	if owner.IsGuest() {
		return nil, nil
	}

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(ownerPK(owner.String())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(ownerIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}

	var out []*entities.Conversation
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		for _, raw := range result.Items {
			var item conversationItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Skipping unreadable conversation item", zap.Error(err))
				continue
			}
			c, err := item.toEntity()
			if err != nil {
				r.logger.Warn("Skipping invalid conversation item", zap.String("id", item.ConversationID), zap.Error(err))
				continue
			}
			out = append(out, c)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return out, nil
}

// Touch advances UpdatedAt and the owner index sort key. The condition keeps
// updatedAt monotonic when two writers race.
func (r *ConversationRepository) Touch(ctx context.Context, id valueobjects.ConversationID, at time.Time) error {
	ts := formatTime(at)

	// GSI1SK moves with UpdatedAt under the same monotonic condition. Guest
	// conversations carry no GSI1PK, so the stray sort key never reaches the
	// owner index.
	update := expression.Set(expression.Name("UpdatedAt"), expression.Value(ts)).
		Set(expression.Name("GSI1SK"), expression.Value(ts)).
		Add(expression.Name("Version"), expression.Value(1))
	cond := expression.AttributeExists(expression.Name("PK")).
		And(expression.Name("UpdatedAt").LessThan(expression.Value(ts)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPK(id.String())},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Already newer, or gone.
			return nil
		}
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (item conversationItem) toEntity() (*entities.Conversation, error) {
	id, err := valueobjects.NewConversationIDFromString(item.ConversationID)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructConversation(
		id,
		valueobjects.NewIdentity(item.Owner),
		valueobjects.SessionKeyFromString(item.SessionKey),
		createdAt,
		updatedAt,
		item.Active,
		item.Version,
	), nil
}
