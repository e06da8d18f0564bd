package services

import (
	"context"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"

	"go.uber.org/zap"
)

// TranscriptWriter appends messages to conversations. Nothing is ever
// rewritten or removed.
type TranscriptWriter struct {
	messages      ports.MessageRepository
	conversations ports.ConversationRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewTranscriptWriter creates a new transcript writer
func NewTranscriptWriter(
	messages ports.MessageRepository,
	conversations ports.ConversationRepository,
	logger *zap.Logger,
) *TranscriptWriter {
	return &TranscriptWriter{
		messages:      messages,
		conversations: conversations,
		logger:        logger,
		now:           time.Now,
	}
}

// Append stores a message and advances the conversation's updatedAt
func (w *TranscriptWriter) Append(
	ctx context.Context,
	conversation *entities.Conversation,
	content valueobjects.MessageContent,
	origin valueobjects.Origin,
	author valueobjects.Identity,
) (*entities.Message, error) {
	ts := conversation.NextTimestamp(w.now())
	message := entities.NewMessage(conversation.ID(), content, origin, author, ts)

	if err := w.messages.Append(ctx, message); err != nil {
		return nil, pkgerrors.NewDatabaseError("append message", err)
	}

	conversation.Touch(ts)
	if err := w.conversations.Touch(ctx, conversation.ID(), ts); err != nil {
		// The message is durable; a stale updatedAt only affects list order.
		w.logger.Warn("Failed to touch conversation",
			zap.String("conversationID", conversation.ID().String()),
			zap.Error(err),
		)
	}

	return message, nil
}
