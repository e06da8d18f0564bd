package queries

import (
	"carechat/domain/core/valueobjects"
	"carechat/pkg/utils"
)

// ListConversationsQuery lists the caller's conversations
type ListConversationsQuery struct {
	UserIdentifier string                `json:"userIdentifier,omitempty" validate:"max=256"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the query
func (q ListConversationsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetConversationQuery fetches one conversation with its transcript
type GetConversationQuery struct {
	ConversationID string                `json:"conversationId" validate:"required"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the query
func (q GetConversationQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// MessageView is one transcript entry as returned to clients
type MessageView struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	IsUser         bool   `json:"isUser"`
	Timestamp      string `json:"timestamp"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

// ConversationSummary is one entry of a conversation listing
type ConversationSummary struct {
	ConversationID string        `json:"conversationId"`
	LastMessage    string        `json:"lastMessage"`
	UpdatedAt      string        `json:"updatedAt"`
	Messages       []MessageView `json:"messages"`
}

// ConversationDetail is a single conversation with its full transcript
type ConversationDetail struct {
	ConversationID string        `json:"conversationId"`
	Active         bool          `json:"active"`
	CreatedAt      string        `json:"createdAt"`
	UpdatedAt      string        `json:"updatedAt"`
	Messages       []MessageView `json:"messages"`
}
