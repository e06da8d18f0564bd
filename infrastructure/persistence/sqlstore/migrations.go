package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Migration is one forward schema step
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// {{serial}} expands to the dialect's auto-increment primary key
var migrations = []Migration{
	{
		Version:     1,
		Description: "conversations and messages",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				owner TEXT NOT NULL DEFAULT '',
				session_key TEXT NOT NULL,
				active INTEGER NOT NULL DEFAULT 1,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				version INTEGER NOT NULL DEFAULT 1
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner, updated_at)`,
			`CREATE TABLE IF NOT EXISTS messages (
				seq {{serial}},
				id TEXT NOT NULL UNIQUE,
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				content TEXT NOT NULL,
				origin TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				ts BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts, seq)`,
		},
	},
	{
		Version:     2,
		Description: "profiles",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS profiles (
				owner TEXT PRIMARY KEY,
				facts TEXT NOT NULL,
				updated_at BIGINT NOT NULL,
				version INTEGER NOT NULL
			)`,
		},
	},
	{
		Version:     3,
		Description: "feedback",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS feedback (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				rating INTEGER NOT NULL DEFAULT 0,
				message TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`,
		},
	},
}

func (db *DB) expand(stmt string) string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == Postgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(stmt, "{{serial}}", serial)
}

// CurrentVersion returns the highest applied migration, or 0
func (db *DB) CurrentVersion(ctx context.Context) (int, error) {
	if _, err := db.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("create schema_versions: %w", err)
	}

	var version int
	if err := db.queryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_versions`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every pending migration in order, each in its own
// transaction, and returns how many ran.
func (db *DB) Migrate(ctx context.Context, logger *zap.Logger) (int, error) {
	current, err := db.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		logger.Info("Applied migration", zap.Int("version", m.Version), zap.String("description", m.Description))
		applied++
	}
	return applied, nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, db.expand(stmt)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		db.rebind(`INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)`),
		m.Version, m.Description, toMicros(time.Now()),
	); err != nil {
		return err
	}
	return tx.Commit()
}
