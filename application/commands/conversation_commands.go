package commands

import (
	"carechat/domain/core/valueobjects"
	"carechat/pkg/utils"
)

// CreateConversationCommand starts a new conversation
type CreateConversationCommand struct {
	// ConversationID is optional; a random one is generated when empty
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,uuid"`
	UserIdentifier string `json:"userIdentifier,omitempty" validate:"max=256"`

	// Verified is the authenticated caller, if any
	Verified valueobjects.Identity `json:"-"`
}

// Validate validates the command
func (c CreateConversationCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ResumeConversationCommand returns the caller's current conversation,
// creating one when there is none
type ResumeConversationCommand struct {
	UserIdentifier string                `json:"userIdentifier,omitempty" validate:"max=256"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the command
func (c ResumeConversationCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// CloseConversationCommand marks a conversation inactive
type CloseConversationCommand struct {
	ConversationID string                `json:"conversationId" validate:"required"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the command
func (c CloseConversationCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ConversationResult is returned by the conversation commands
type ConversationResult struct {
	ConversationID string `json:"conversationId"`
	CreatedAt      string `json:"createdAt"`
	Created        bool   `json:"created"`
}
