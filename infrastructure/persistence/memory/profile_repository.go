package memory

import (
	"context"
	"sync"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

type profileRecord struct {
	facts     entities.Facts
	updatedAt time.Time
	version   int
}

// ProfileRepository stores profile snapshots by owner
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]profileRecord
}

// NewProfileRepository creates an empty repository
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]profileRecord)}
}

// Get implements ports.ProfileRepository
func (r *ProfileRepository) Get(ctx context.Context, owner valueobjects.Identity) (*entities.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.profiles[owner.String()]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return entities.ReconstructProfile(owner, rec.facts, rec.updatedAt, rec.version), nil
}

// Save implements ports.ProfileRepository
func (r *ProfileRepository) Save(ctx context.Context, p *entities.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[p.Owner().String()] = profileRecord{
		facts:     p.Facts(),
		updatedAt: p.UpdatedAt(),
		version:   p.Version(),
	}
	return nil
}
