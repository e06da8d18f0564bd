package handlers

import (
	"context"
	"fmt"

	"carechat/application/commands"
	"carechat/application/commands/bus"
	"carechat/application/services"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/utils"

	"go.uber.org/zap"
)

// CreateConversationHandler handles conversation creation
type CreateConversationHandler struct {
	registry *services.SessionRegistry
	logger   *zap.Logger
}

// NewCreateConversationHandler creates a new handler
func NewCreateConversationHandler(registry *services.SessionRegistry, logger *zap.Logger) *CreateConversationHandler {
	return &CreateConversationHandler{registry: registry, logger: logger}
}

// Handle creates the conversation and returns a ConversationResult
func (h *CreateConversationHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CreateConversationCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	owner, err := services.ResolveCallerIdentity(c.Verified, c.UserIdentifier)
	if err != nil {
		return nil, err
	}

	id := valueobjects.NewConversationID()
	if c.ConversationID != "" {
		if id, err = valueobjects.NewConversationIDFromString(c.ConversationID); err != nil {
			return nil, pkgerrors.NewValidationError(err.Error())
		}
	}

	conversation, err := h.registry.CreateWithID(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	return &commands.ConversationResult{
		ConversationID: conversation.ID().String(),
		CreatedAt:      utils.FormatTimestamp(conversation.CreatedAt()),
		Created:        true,
	}, nil
}

// ResumeConversationHandler finds or starts the caller's current conversation
type ResumeConversationHandler struct {
	registry *services.SessionRegistry
}

// NewResumeConversationHandler creates a new handler
func NewResumeConversationHandler(registry *services.SessionRegistry) *ResumeConversationHandler {
	return &ResumeConversationHandler{registry: registry}
}

// Handle returns a ConversationResult; Created reports whether a new
// conversation was started
func (h *ResumeConversationHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ResumeConversationCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	owner, err := services.ResolveCallerIdentity(c.Verified, c.UserIdentifier)
	if err != nil {
		return nil, err
	}

	conversation, created, err := h.registry.ResolveOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}

	return &commands.ConversationResult{
		ConversationID: conversation.ID().String(),
		CreatedAt:      utils.FormatTimestamp(conversation.CreatedAt()),
		Created:        created,
	}, nil
}

// CloseConversationHandler marks conversations inactive
type CloseConversationHandler struct {
	registry *services.SessionRegistry
	logger   *zap.Logger
}

// NewCloseConversationHandler creates a new handler
func NewCloseConversationHandler(registry *services.SessionRegistry, logger *zap.Logger) *CloseConversationHandler {
	return &CloseConversationHandler{registry: registry, logger: logger}
}

// Handle closes the conversation. Closing an inactive conversation is a no-op.
func (h *CloseConversationHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CloseConversationCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	conversation, err := h.registry.Resolve(ctx, c.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.Verified.IsGuest() && !conversation.IsOwnedBy(c.Verified) {
		return nil, pkgerrors.NewForbiddenError("conversation belongs to another user")
	}
	if !conversation.IsActive() {
		return nil, nil
	}

	if err := h.registry.Close(ctx, conversation); err != nil {
		return nil, err
	}

	h.logger.Info("Conversation closed",
		zap.String("conversationID", conversation.ID().String()),
	)
	return nil, nil
}
