package dynamodb

import (
	"context"
	"fmt"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// MessageRepository stores messages under their conversation's partition.
// Sort keys start with the fixed-width timestamp, so a forward query returns
// the transcript in order.
type MessageRepository struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(client Client, tableName string, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{client: client, tableName: tableName, logger: logger}
}

type messageItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	EntityType     string `dynamodbav:"EntityType"`
	MessageID      string `dynamodbav:"MessageID"`
	ConversationID string `dynamodbav:"ConversationID"`
	Content        string `dynamodbav:"Content"`
	Origin         string `dynamodbav:"Origin"`
	Author         string `dynamodbav:"Author,omitempty"`
	Timestamp      string `dynamodbav:"Timestamp"`
}

// Append stores a message. Message ids are unique, so the write never
// replaces an existing item.
func (r *MessageRepository) Append(ctx context.Context, m *entities.Message) error {
	ts := formatTime(m.Timestamp())
	item := messageItem{
		PK:             conversationPK(m.ConversationID().String()),
		SK:             "MSG#" + ts + "#" + m.ID(),
		EntityType:     "MESSAGE",
		MessageID:      m.ID(),
		ConversationID: m.ConversationID().String(),
		Content:        m.Content().String(),
		Origin:         m.Origin().String(),
		Author:         m.Author().String(),
		Timestamp:      ts,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListByConversation returns the whole transcript oldest first
func (r *MessageRepository) ListByConversation(ctx context.Context, id valueobjects.ConversationID) ([]*entities.Message, error) {
	return r.query(ctx, id, true, 0)
}

// Recent returns the newest limit messages oldest first
func (r *MessageRepository) Recent(ctx context.Context, id valueobjects.ConversationID, limit int) ([]*entities.Message, error) {
	newestFirst, err := r.query(ctx, id, false, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

func (r *MessageRepository) query(ctx context.Context, id valueobjects.ConversationID, forward bool, limit int) ([]*entities.Message, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(conversationPK(id.String()))).
		And(expression.Key("SK").BeginsWith("MSG#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
		ConsistentRead:            aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var out []*entities.Message
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query messages: %w", err)
		}
		for _, raw := range result.Items {
			var item messageItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message: %w", err)
			}
			m, err := item.toEntity(id)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		if len(result.LastEvaluatedKey) == 0 || (limit > 0 && len(out) >= limit) {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return out, nil
}

func (item messageItem) toEntity(id valueobjects.ConversationID) (*entities.Message, error) {
	ts, err := parseTime(item.Timestamp)
	if err != nil {
		return nil, err
	}
	origin, err := valueobjects.ParseOrigin(item.Origin)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructMessage(
		item.MessageID,
		id,
		valueobjects.NewAssistantContent(item.Content),
		origin,
		valueobjects.NewIdentity(item.Author),
		ts,
	), nil
}
