package services

import (
	"context"
	"errors"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"

	"go.uber.org/zap"
)

// SessionRegistry maps conversation identifiers to conversations and their
// backend session keys
type SessionRegistry struct {
	conversations ports.ConversationRepository
	publisher     ports.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewSessionRegistry creates a new session registry
func NewSessionRegistry(
	conversations ports.ConversationRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		conversations: conversations,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}
}

// Create starts a new conversation for the owner. Concurrent calls for the
// same owner create independent conversations.
func (r *SessionRegistry) Create(ctx context.Context, owner valueobjects.Identity) (*entities.Conversation, error) {
	return r.CreateWithID(ctx, valueobjects.NewConversationID(), owner)
}

// CreateWithID starts a conversation under a caller-chosen identifier
func (r *SessionRegistry) CreateWithID(ctx context.Context, id valueobjects.ConversationID, owner valueobjects.Identity) (*entities.Conversation, error) {
	conversation := entities.NewConversation(id, owner, r.now())

	if err := r.conversations.Save(ctx, conversation); err != nil {
		return nil, pkgerrors.NewDatabaseError("save conversation", err)
	}

	r.publish(ctx, conversation)

	r.logger.Debug("Conversation created",
		zap.String("conversationID", conversation.ID().String()),
		zap.String("owner", owner.Display()),
		zap.String("sessionKey", conversation.SessionKey().String()),
	)
	return conversation, nil
}

// Resolve fetches a conversation by identifier
func (r *SessionRegistry) Resolve(ctx context.Context, rawID string) (*entities.Conversation, error) {
	if rawID == "" {
		return nil, pkgerrors.NewMissingInputError("conversationId")
	}

	id, err := valueobjects.NewConversationIDFromString(rawID)
	if err != nil {
		return nil, pkgerrors.NewUnknownConversationError(rawID)
	}

	conversation, err := r.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, pkgerrors.NewUnknownConversationError(rawID)
		}
		return nil, pkgerrors.NewDatabaseError("get conversation", err)
	}
	return conversation, nil
}

// ResolveActive is Resolve restricted to conversations that accept turns
func (r *SessionRegistry) ResolveActive(ctx context.Context, rawID string) (*entities.Conversation, error) {
	conversation, err := r.Resolve(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsActive() {
		return nil, pkgerrors.NewUnknownConversationError(rawID)
	}
	return conversation, nil
}

// ResolveOrCreate returns the owner's most recently updated active
// conversation, creating one when none exists. Guests always get a new one.
func (r *SessionRegistry) ResolveOrCreate(ctx context.Context, owner valueobjects.Identity) (*entities.Conversation, bool, error) {
	if !owner.IsGuest() {
		existing, err := r.conversations.ListByOwner(ctx, owner)
		if err != nil {
			return nil, false, pkgerrors.NewDatabaseError("list conversations", err)
		}
		for _, c := range existing {
			if c.IsActive() {
				return c, false, nil
			}
		}
	}

	conversation, err := r.Create(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	return conversation, true, nil
}

// Close deactivates a conversation. Messages are kept.
func (r *SessionRegistry) Close(ctx context.Context, conversation *entities.Conversation) error {
	conversation.Close(r.now())
	if err := r.conversations.Save(ctx, conversation); err != nil {
		return pkgerrors.NewDatabaseError("save conversation", err)
	}
	r.publish(ctx, conversation)
	return nil
}

func (r *SessionRegistry) publish(ctx context.Context, conversation *entities.Conversation) {
	pending := conversation.GetUncommittedEvents()
	if len(pending) == 0 {
		return
	}
	if err := r.publisher.PublishBatch(ctx, pending); err != nil {
		r.logger.Warn("Failed to publish conversation events",
			zap.String("conversationID", conversation.ID().String()),
			zap.Error(err),
		)
		return
	}
	conversation.MarkEventsAsCommitted()
}
