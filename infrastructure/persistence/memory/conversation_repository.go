// Package memory holds process-local repositories used by tests, the local
// API server and the CLI
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

type conversationRecord struct {
	id         valueobjects.ConversationID
	owner      valueobjects.Identity
	sessionKey valueobjects.SessionKey
	createdAt  time.Time
	updatedAt  time.Time
	active     bool
	version    int
}

// ConversationRepository stores conversations in a map. Records are copied in
// and out so callers never share entity pointers.
type ConversationRepository struct {
	mu      sync.RWMutex
	records map[valueobjects.ConversationID]conversationRecord
}

// NewConversationRepository creates an empty repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{records: make(map[valueobjects.ConversationID]conversationRecord)}
}

// Save implements ports.ConversationRepository
func (r *ConversationRepository) Save(ctx context.Context, c *entities.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[c.ID()] = conversationRecord{
		id:         c.ID(),
		owner:      c.Owner(),
		sessionKey: c.SessionKey(),
		createdAt:  c.CreatedAt(),
		updatedAt:  c.UpdatedAt(),
		active:     c.IsActive(),
		version:    c.Version(),
	}
	return nil
}

// GetByID implements ports.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id valueobjects.ConversationID) (*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return rec.entity(), nil
}

// ListByOwner implements ports.ConversationRepository
func (r *ConversationRepository) ListByOwner(ctx context.Context, owner valueobjects.Identity) ([]*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.Conversation
	for _, rec := range r.records {
		if rec.owner.Equals(owner) {
			out = append(out, rec.entity())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt().Equal(out[j].UpdatedAt()) {
			return out[i].ID().String() < out[j].ID().String()
		}
		return out[i].UpdatedAt().After(out[j].UpdatedAt())
	})
	return out, nil
}

// Touch implements ports.ConversationRepository
func (r *ConversationRepository) Touch(ctx context.Context, id valueobjects.ConversationID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ports.ErrNotFound
	}
	if at.After(rec.updatedAt) {
		rec.updatedAt = at
		rec.version++
		r.records[id] = rec
	}
	return nil
}

func (rec conversationRecord) entity() *entities.Conversation {
	return entities.ReconstructConversation(rec.id, rec.owner, rec.sessionKey, rec.createdAt, rec.updatedAt, rec.active, rec.version)
}
