package ports

import (
	"context"
	"errors"
	"time"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
)

// ErrNotFound is returned by repositories when a record does not exist
var ErrNotFound = errors.New("record not found")

// ConversationRepository defines the interface for conversation persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type ConversationRepository interface {
	// Save persists a conversation (create or update)
	Save(ctx context.Context, conversation *entities.Conversation) error

	// GetByID retrieves a conversation by its ID, or ErrNotFound
	GetByID(ctx context.Context, id valueobjects.ConversationID) (*entities.Conversation, error)

	// ListByOwner retrieves the owner's conversations, most recently updated first
	ListByOwner(ctx context.Context, owner valueobjects.Identity) ([]*entities.Conversation, error)

	// Touch advances updatedAt without rewriting the rest of the record
	Touch(ctx context.Context, id valueobjects.ConversationID, at time.Time) error
}

// MessageRepository defines the interface for transcript persistence.
// There is no update or delete.
type MessageRepository interface {
	// Append stores a message at the end of its conversation
	Append(ctx context.Context, message *entities.Message) error

	// ListByConversation returns every message in timestamp order
	ListByConversation(ctx context.Context, id valueobjects.ConversationID) ([]*entities.Message, error)

	// Recent returns at most limit of the newest messages, oldest first
	Recent(ctx context.Context, id valueobjects.ConversationID, limit int) ([]*entities.Message, error)
}

// ProfileRepository defines the interface for profile persistence
type ProfileRepository interface {
	// Get retrieves the owner's profile, or ErrNotFound
	Get(ctx context.Context, owner valueobjects.Identity) (*entities.Profile, error)

	// Save writes the whole profile. Callers hold the owner's lock.
	Save(ctx context.Context, profile *entities.Profile) error
}

// FeedbackRepository defines the interface for feedback persistence
type FeedbackRepository interface {
	Save(ctx context.Context, feedback *entities.Feedback) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
