package inprocess

import (
	"context"

	"carechat/domain/events"

	"go.uber.org/zap"
)

// LogPublisher writes domain events to the log. Used when no event bus is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log-only publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements ports.EventPublisher
func (p *LogPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Debug("Domain event",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
		zap.Time("timestamp", event.GetTimestamp()),
	)
	return nil
}

// PublishBatch implements ports.EventPublisher
func (p *LogPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		_ = p.Publish(ctx, event)
	}
	return nil
}
