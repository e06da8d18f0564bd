package sqlstore

import (
	"context"
	"fmt"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

// FeedbackRepository implements ports.FeedbackRepository
type FeedbackRepository struct {
	db *DB
}

// NewFeedbackRepository creates a new FeedbackRepository
func NewFeedbackRepository(db *DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Save stores a feedback entry
func (r *FeedbackRepository) Save(ctx context.Context, f *entities.Feedback) error {
	_, err := r.db.exec(ctx,
		`INSERT INTO feedback (id, kind, rating, message, author, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID(), string(f.Kind()), f.Rating(), f.Message(), f.Author().String(), toMicros(f.CreatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// List returns feedback newest first
func (r *FeedbackRepository) List(ctx context.Context, limit int) ([]*entities.Feedback, error) {
	rows, err := r.db.query(ctx,
		`SELECT id, kind, rating, message, author, created_at FROM feedback ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []*entities.Feedback
	for rows.Next() {
		var (
			id, kind, message, author string
			rating                    int
			createdAt                 int64
		)
		if err := rows.Scan(&id, &kind, &rating, &message, &author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, entities.ReconstructFeedback(
			id, entities.FeedbackKind(kind), rating, message, valueobjects.NewIdentity(author), fromMicros(createdAt),
		))
	}
	return out, rows.Err()
}
