package handlers

import (
	"context"
	"fmt"

	"carechat/application/ports"
	"carechat/application/queries"
	"carechat/application/queries/bus"
	"carechat/application/services"
	"carechat/domain/core/entities"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/utils"
)

// ListConversationsHandler returns the caller's conversations, most recently
// updated first
type ListConversationsHandler struct {
	conversations ports.ConversationRepository
	messages      ports.MessageRepository
}

// NewListConversationsHandler creates a new handler
func NewListConversationsHandler(conversations ports.ConversationRepository, messages ports.MessageRepository) *ListConversationsHandler {
	return &ListConversationsHandler{conversations: conversations, messages: messages}
}

// Handle returns []queries.ConversationSummary. Guests have no listing.
func (h *ListConversationsHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.ListConversationsQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", q)
	}

	owner, err := services.ResolveCallerIdentity(query.Verified, query.UserIdentifier)
	if err != nil {
		return nil, err
	}

	summaries := []queries.ConversationSummary{}
	if owner.IsGuest() {
		return summaries, nil
	}

	conversations, err := h.conversations.ListByOwner(ctx, owner)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list conversations", err)
	}

	for _, c := range conversations {
		messages, err := h.messages.ListByConversation(ctx, c.ID())
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list messages", err)
		}

		summary := queries.ConversationSummary{
			ConversationID: c.ID().String(),
			UpdatedAt:      utils.FormatTimestamp(c.UpdatedAt()),
			Messages:       toMessageViews(messages),
		}
		if n := len(messages); n > 0 {
			summary.LastMessage = messages[n-1].Content().String()
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetConversationHandler returns one conversation with its transcript
type GetConversationHandler struct {
	registry *services.SessionRegistry
	messages ports.MessageRepository
}

// NewGetConversationHandler creates a new handler
func NewGetConversationHandler(registry *services.SessionRegistry, messages ports.MessageRepository) *GetConversationHandler {
	return &GetConversationHandler{registry: registry, messages: messages}
}

// Handle returns *queries.ConversationDetail
func (h *GetConversationHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.GetConversationQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", q)
	}

	conversation, err := h.registry.Resolve(ctx, query.ConversationID)
	if err != nil {
		return nil, err
	}
	if !query.Verified.IsGuest() && !conversation.IsOwnedBy(query.Verified) {
		return nil, pkgerrors.NewForbiddenError("conversation belongs to another user")
	}

	messages, err := h.messages.ListByConversation(ctx, conversation.ID())
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list messages", err)
	}

	return &queries.ConversationDetail{
		ConversationID: conversation.ID().String(),
		Active:         conversation.IsActive(),
		CreatedAt:      utils.FormatTimestamp(conversation.CreatedAt()),
		UpdatedAt:      utils.FormatTimestamp(conversation.UpdatedAt()),
		Messages:       toMessageViews(messages),
	}, nil
}

func toMessageViews(messages []*entities.Message) []queries.MessageView {
	views := make([]queries.MessageView, len(messages))
	for i, m := range messages {
		views[i] = queries.MessageView{
			ID:             m.ID(),
			Content:        m.Content().String(),
			IsUser:         m.Origin().IsUser(),
			Timestamp:      utils.FormatTimestamp(m.Timestamp()),
			UserIdentifier: m.Author().String(),
		}
	}
	return views
}
