package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const profileSK = "PROFILE"

// ProfileRepository stores one item per owner
type ProfileRepository struct {
	client    Client
	tableName string
	logger    *zap.Logger
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(client Client, tableName string, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{client: client, tableName: tableName, logger: logger}
}

type profileItem struct {
	PK         string              `dynamodbav:"PK"`
	SK         string              `dynamodbav:"SK"`
	EntityType string              `dynamodbav:"EntityType"`
	Owner      string              `dynamodbav:"Owner"`
	Categories map[string][]string `dynamodbav:"Categories"`
	UpdatedAt  string              `dynamodbav:"UpdatedAt"`
	Version    int                 `dynamodbav:"Version"`
}

// Get retrieves the owner's profile
func (r *ProfileRepository) Get(ctx context.Context, owner valueobjects.Identity) (*entities.Profile, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: profilePK(owner.String())},
			"SK": &types.AttributeValueMemberS{Value: profileSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if result.Item == nil {
		return nil, ports.ErrNotFound
	}

	var item profileItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructProfile(owner, entities.Facts(item.Categories), updatedAt, item.Version), nil
}

// Save writes the whole profile. A write carrying an older version than the
// stored one is rejected as a conflict.
func (r *ProfileRepository) Save(ctx context.Context, p *entities.Profile) error {
	item := profileItem{
		PK:         profilePK(p.Owner().String()),
		SK:         profileSK,
		EntityType: "PROFILE",
		Owner:      p.Owner().String(),
		Categories: p.Facts(),
		UpdatedAt:  formatTime(p.UpdatedAt()),
		Version:    p.Version(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK")).
		Or(expression.Name("Version").LessThan(expression.Value(p.Version())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.logger.Warn("Stale profile write rejected",
				zap.String("owner", p.Owner().String()),
				zap.Int("version", p.Version()),
			)
			return pkgerrors.NewConflictError("profile was modified concurrently").WithCause(err)
		}
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
