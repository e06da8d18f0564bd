package dynamodb

import (
	"context"
	"fmt"

	"carechat/domain/core/entities"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// FeedbackRepository stores feedback entries
type FeedbackRepository struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewFeedbackRepository creates a new FeedbackRepository
func NewFeedbackRepository(client Client, tableName string, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{client: client, tableName: tableName, logger: logger}
}

type feedbackItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Kind       string `dynamodbav:"Kind"`
	Rating     int    `dynamodbav:"Rating,omitempty"`
	Message    string `dynamodbav:"Message"`
	Author     string `dynamodbav:"Author,omitempty"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

// Save stores a feedback entry
func (r *FeedbackRepository) Save(ctx context.Context, f *entities.Feedback) error {
	av, err := attributevalue.MarshalMap(feedbackItem{
		PK:         "FEEDBACK#" + f.ID(),
		SK:         "FEEDBACK",
		EntityType: "FEEDBACK",
		Kind:       string(f.Kind()),
		Rating:     f.Rating(),
		Message:    f.Message(),
		Author:     f.Author().String(),
		CreatedAt:  formatTime(f.CreatedAt()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	r.logger.Debug("Feedback stored", zap.String("feedbackID", f.ID()), zap.String("kind", string(f.Kind())))
	return nil
}
