package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"carechat/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// Source is the EventBridge source of every carechat event
const Source = "carechat.chat"

// maxEntries is the PutEvents limit per call
const maxEntries = 10

// PutEventsAPI is the subset of the EventBridge client used here
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements ports.EventPublisher on EventBridge
type Publisher struct {
	client       PutEventsAPI
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client PutEventsAPI, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, eventBusName: eventBusName, logger: logger}
}

// Publish sends a single event to EventBridge
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends events in chunks of ten
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for i := 0; i < len(domainEvents); i += maxEntries {
		end := min(i+maxEntries, len(domainEvents))

		entries := make([]types.PutEventsRequestEntry, 0, end-i)
		for _, event := range domainEvents[i:end] {
			detail, err := json.Marshal(event)
			if err != nil {
				p.logger.Error("Failed to marshal event", zap.String("eventType", event.GetEventType()), zap.Error(err))
				continue
			}
			entries = append(entries, types.PutEventsRequestEntry{
				EventBusName: aws.String(p.eventBusName),
				Source:       aws.String(Source),
				DetailType:   aws.String(event.GetEventType()),
				Detail:       aws.String(string(detail)),
				Time:         aws.Time(event.GetTimestamp()),
			})
		}

		if err := p.put(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) put(ctx context.Context, entries []types.PutEventsRequestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("detailType", aws.ToString(entries[i].DetailType)),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
