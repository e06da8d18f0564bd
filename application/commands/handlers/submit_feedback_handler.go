package handlers

import (
	"context"
	"fmt"
	"time"

	"carechat/application/commands"
	"carechat/application/commands/bus"
	"carechat/application/ports"
	"carechat/application/services"
	"carechat/domain/core/entities"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/utils"

	"go.uber.org/zap"
)

// SubmitFeedbackHandler stores feedback and announces it
type SubmitFeedbackHandler struct {
	feedback  ports.FeedbackRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubmitFeedbackHandler creates a new handler
func NewSubmitFeedbackHandler(
	feedback ports.FeedbackRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *SubmitFeedbackHandler {
	return &SubmitFeedbackHandler{
		feedback:  feedback,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle saves the feedback and returns a FeedbackResult
func (h *SubmitFeedbackHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.SubmitFeedbackCommand)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	author, err := services.ResolveCallerIdentity(c.Verified, c.UserIdentifier)
	if err != nil {
		return nil, err
	}

	feedback, err := entities.NewFeedback(entities.FeedbackKind(c.Type), c.Rating, c.Message, author, h.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := h.feedback.Save(ctx, feedback); err != nil {
		return nil, pkgerrors.NewDatabaseError("save feedback", err)
	}

	if err := h.publisher.PublishBatch(ctx, feedback.GetUncommittedEvents()); err != nil {
		h.logger.Warn("Failed to publish feedback event",
			zap.String("feedbackID", feedback.ID()),
			zap.Error(err),
		)
	}

	return &commands.FeedbackResult{
		FeedbackID: feedback.ID(),
		CreatedAt:  utils.FormatTimestamp(feedback.CreatedAt()),
	}, nil
}
