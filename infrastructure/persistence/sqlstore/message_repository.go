package sqlstore

import (
	"context"
	"fmt"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

// MessageRepository implements ports.MessageRepository. The seq column breaks
// ties between equal timestamps in insertion order.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores a message
func (r *MessageRepository) Append(ctx context.Context, m *entities.Message) error {
	_, err := r.db.exec(ctx,
		`INSERT INTO messages (id, conversation_id, content, origin, author, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID(), m.ConversationID().String(), m.Content().String(), m.Origin().String(),
		m.Author().String(), toMicros(m.Timestamp()),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListByConversation returns the transcript oldest first
func (r *MessageRepository) ListByConversation(ctx context.Context, id valueobjects.ConversationID) ([]*entities.Message, error) {
	return r.list(ctx, id,
		`SELECT id, content, origin, author, ts FROM messages WHERE conversation_id = ? ORDER BY ts, seq`,
		id.String())
}

// Recent returns the newest limit messages oldest first
func (r *MessageRepository) Recent(ctx context.Context, id valueobjects.ConversationID, limit int) ([]*entities.Message, error) {
	if limit <= 0 {
		return r.ListByConversation(ctx, id)
	}
	out, err := r.list(ctx, id,
		`SELECT id, content, origin, author, ts FROM messages WHERE conversation_id = ? ORDER BY ts DESC, seq DESC LIMIT ?`,
		id.String(), limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepository) list(ctx context.Context, id valueobjects.ConversationID, query string, args ...any) ([]*entities.Message, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*entities.Message
	for rows.Next() {
		var (
			msgID, content, origin, author string
			ts                             int64
		)
		if err := rows.Scan(&msgID, &content, &origin, &author, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		o, err := valueobjects.ParseOrigin(origin)
		if err != nil {
			return nil, err
		}
		out = append(out, entities.ReconstructMessage(
			msgID, id, valueobjects.NewAssistantContent(content), o, valueobjects.NewIdentity(author), fromMicros(ts),
		))
	}
	return out, rows.Err()
}
