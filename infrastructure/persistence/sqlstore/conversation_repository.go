package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

// ConversationRepository implements ports.ConversationRepository
type ConversationRepository struct {
	db *DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, owner, session_key, active, created_at, updated_at, version`

// Save inserts or updates a conversation
func (r *ConversationRepository) Save(ctx context.Context, c *entities.Conversation) error {
	_, err := r.db.exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			active = excluded.active,
			updated_at = excluded.updated_at,
			version = excluded.version`,
		c.ID().String(), c.Owner().String(), c.SessionKey().String(), boolToInt(c.IsActive()),
		toMicros(c.CreatedAt()), toMicros(c.UpdatedAt()), c.Version(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation
func (r *ConversationRepository) GetByID(ctx context.Context, id valueobjects.ConversationID) (*entities.Conversation, error) {
	row := r.db.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id.String())
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// ListByOwner returns the owner's conversations, most recently updated first
func (r *ConversationRepository) ListByOwner(ctx context.Context, owner valueobjects.Identity) ([]*entities.Conversation, error) {
	if owner.IsGuest() {
		return nil, nil
	}

	rows, err := r.db.query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE owner = ? ORDER BY updated_at DESC, id`,
		owner.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*entities.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Touch advances updated_at. Older timestamps are ignored.
func (r *ConversationRepository) Touch(ctx context.Context, id valueobjects.ConversationID, at time.Time) error {
	us := toMicros(at)
	_, err := r.db.exec(ctx,
		`UPDATE conversations SET updated_at = ?, version = version + 1 WHERE id = ? AND updated_at < ?`,
		us, id.String(), us)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*entities.Conversation, error) {
	var (
		id, owner, key       string
		active, version      int
		createdAt, updatedAt int64
	)
	if err := s.Scan(&id, &owner, &key, &active, &createdAt, &updatedAt, &version); err != nil {
		return nil, err
	}
	convID, err := valueobjects.NewConversationIDFromString(id)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructConversation(
		convID,
		valueobjects.NewIdentity(owner),
		valueobjects.SessionKeyFromString(key),
		fromMicros(createdAt),
		fromMicros(updatedAt),
		active == 1,
		version,
	), nil
}
