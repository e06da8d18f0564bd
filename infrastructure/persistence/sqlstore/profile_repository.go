package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"
)

// ProfileRepository stores each profile as a JSON document
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get retrieves a profile
func (r *ProfileRepository) Get(ctx context.Context, owner valueobjects.Identity) (*entities.Profile, error) {
	var (
		raw       string
		updatedAt int64
		version   int
	)
	err := r.db.queryRow(ctx,
		`SELECT facts, updated_at, version FROM profiles WHERE owner = ?`, owner.String(),
	).Scan(&raw, &updatedAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var facts entities.Facts
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return entities.ReconstructProfile(owner, facts, fromMicros(updatedAt), version), nil
}

// Save upserts the profile. A write whose version is not newer than the
// stored one changes nothing and is reported as a conflict.
func (r *ProfileRepository) Save(ctx context.Context, p *entities.Profile) error {
	raw, err := json.Marshal(p.Facts())
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	res, err := r.db.exec(ctx, `
		INSERT INTO profiles (owner, facts, updated_at, version) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner) DO UPDATE SET
			facts = excluded.facts,
			updated_at = excluded.updated_at,
			version = excluded.version
		WHERE profiles.version < excluded.version`,
		p.Owner().String(), string(raw), toMicros(p.UpdatedAt()), p.Version(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.NewConflictError("profile was modified concurrently")
	}
	return nil
}
