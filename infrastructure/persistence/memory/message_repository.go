package memory

import (
	"context"
	"sync"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

// MessageRepository keeps each transcript as an append-only slice
type MessageRepository struct {
	mu          sync.RWMutex
	transcripts map[valueobjects.ConversationID][]*entities.Message
}

// NewMessageRepository creates an empty repository
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{transcripts: make(map[valueobjects.ConversationID][]*entities.Message)}
}

// Append implements ports.MessageRepository
func (r *MessageRepository) Append(ctx context.Context, m *entities.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transcripts[m.ConversationID()] = append(r.transcripts[m.ConversationID()], m)
	return nil
}

// ListByConversation implements ports.MessageRepository
func (r *MessageRepository) ListByConversation(ctx context.Context, id valueobjects.ConversationID) ([]*entities.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transcript := r.transcripts[id]
	out := make([]*entities.Message, len(transcript))
	copy(out, transcript)
	return out, nil
}

// Recent implements ports.MessageRepository
func (r *MessageRepository) Recent(ctx context.Context, id valueobjects.ConversationID, limit int) ([]*entities.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transcript := r.transcripts[id]
	if limit > 0 && len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}
	out := make([]*entities.Message, len(transcript))
	copy(out, transcript)
	return out, nil
}
