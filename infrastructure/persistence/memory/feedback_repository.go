package memory

import (
	"context"
	"sync"

	"carechat/domain/core/entities"
)

// FeedbackRepository collects feedback in arrival order
type FeedbackRepository struct {
	mu    sync.Mutex
	items []*entities.Feedback
}

// NewFeedbackRepository creates an empty repository
func NewFeedbackRepository() *FeedbackRepository {
	return &FeedbackRepository{}
}

// Save implements ports.FeedbackRepository
func (r *FeedbackRepository) Save(ctx context.Context, f *entities.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, f)
	return nil
}

// All returns every stored feedback entry
func (r *FeedbackRepository) All() []*entities.Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entities.Feedback, len(r.items))
	copy(out, r.items)
	return out
}
