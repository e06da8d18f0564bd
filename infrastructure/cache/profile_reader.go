package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// profileSnapshot is the cached form of a profile
type profileSnapshot struct {
	Facts     entities.Facts `json:"facts"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int            `json:"version"`
}

// CachedProfileRepository serves profile reads from a cache in front of the
// authoritative repository. Concurrent misses for one owner share a single
// load. Reads may lag a merge by up to the TTL when another process merged.
type CachedProfileRepository struct {
	inner  ports.ProfileRepository
	cache  ports.Cache
	ttl    time.Duration
	key    func(valueobjects.Identity) string
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedProfileRepository wraps inner. key must match the key the profile
// merger invalidates.
func NewCachedProfileRepository(
	inner ports.ProfileRepository,
	cache ports.Cache,
	ttl time.Duration,
	key func(valueobjects.Identity) string,
	logger *zap.Logger,
) *CachedProfileRepository {
	return &CachedProfileRepository{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		key:    key,
		logger: logger,
	}
}

// Get implements ports.ProfileRepository
func (r *CachedProfileRepository) Get(ctx context.Context, owner valueobjects.Identity) (*entities.Profile, error) {
	key := r.key(owner)

	if b, err := r.cache.Get(ctx, key); err == nil {
		var snap profileSnapshot
		if err := json.Unmarshal(b, &snap); err == nil {
			return entities.ReconstructProfile(owner, snap.Facts, snap.UpdatedAt, snap.Version), nil
		}
		r.logger.Warn("Discarding unreadable profile cache entry", zap.String("key", key))
	} else if !errors.Is(err, ports.ErrCacheMiss) {
		r.logger.Warn("Profile cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		profile, err := r.inner.Get(ctx, owner)
		if err != nil {
			return nil, err
		}
		r.store(ctx, key, profile)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}

	// Each caller gets its own copy of the shared load.
	shared := v.(*entities.Profile)
	return entities.ReconstructProfile(owner, shared.Facts(), shared.UpdatedAt(), shared.Version()), nil
}

// Save writes through and drops the cached snapshot
func (r *CachedProfileRepository) Save(ctx context.Context, profile *entities.Profile) error {
	if err := r.inner.Save(ctx, profile); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, r.key(profile.Owner())); err != nil {
		r.logger.Warn("Profile cache invalidation failed", zap.String("owner", profile.Owner().String()), zap.Error(err))
	}
	return nil
}

func (r *CachedProfileRepository) store(ctx context.Context, key string, profile *entities.Profile) {
	b, err := json.Marshal(profileSnapshot{
		Facts:     profile.Facts(),
		UpdatedAt: profile.UpdatedAt(),
		Version:   profile.Version(),
	})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, b, r.ttl); err != nil {
		r.logger.Warn("Profile cache write failed", zap.String("key", key), zap.Error(err))
	}
}
