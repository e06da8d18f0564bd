package commands

import (
	"carechat/domain/core/valueobjects"
	"carechat/pkg/utils"
)

// SubmitFeedbackCommand records user feedback about the service
type SubmitFeedbackCommand struct {
	Type           string                `json:"type" validate:"omitempty,oneof=general bug feature other"`
	Rating         int                   `json:"rating,omitempty" validate:"min=0,max=5"`
	Message        string                `json:"message" validate:"required,max=4000"`
	UserIdentifier string                `json:"userIdentifier,omitempty" validate:"max=256"`
	Verified       valueobjects.Identity `json:"-"`
}

// Validate validates the command
func (c SubmitFeedbackCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// FeedbackResult is returned after feedback is stored
type FeedbackResult struct {
	FeedbackID string `json:"feedbackId"`
	CreatedAt  string `json:"createdAt"`
}
