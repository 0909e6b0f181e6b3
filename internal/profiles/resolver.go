// Package profiles resolves login keys to the accounts they open.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const profilesCacheKey = "profiles"

// ResolverConfig describes the dependencies required for profile resolution.
type ResolverConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Resolver matches login keys against stored profiles.
type Resolver struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
	loads  singleflight.Group
}

// NewResolver constructs the profile resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("profiles: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Resolve returns the profile whose login key is key.
func (r *Resolver) Resolve(ctx context.Context, key string) (Profile, error) {
	if normalize(key) == "" {
		return Profile{}, ErrInvalidCredential
	}
	candidates, err := r.profiles(ctx)
	if err != nil {
		return Profile{}, err
	}
	for _, candidate := range candidates {
		if !candidate.Matches(key) {
			continue
		}
		seenAt := r.now().UTC()
		if err := r.db.WithContext(ctx).
			Model(&Profile{}).
			Where("account_id = ?", candidate.AccountID).
			Update("last_seen_at", seenAt).
			Error; err != nil {
			r.logger.Warn("profile last seen update failed",
				zap.String("account_id", candidate.AccountID),
				zap.Error(err))
		}
		candidate.LastSeenAt = seenAt
		return candidate, nil
	}
	return Profile{}, ErrUnknownCredential
}

// Register stores profile, replacing any profile with the same account id.
func (r *Resolver) Register(ctx context.Context, profile Profile) error {
	if normalize(profile.AccountID) == "" || profile.CredentialHash == "" {
		return ErrInvalidCredential
	}
	if err := r.db.WithContext(ctx).Save(&profile).Error; err != nil {
		return err
	}
	r.cache.Delete(profilesCacheKey)
	return nil
}

func (r *Resolver) profiles(ctx context.Context) ([]Profile, error) {
	if cached, ok := r.cache.Load(profilesCacheKey); ok {
		if loaded, ok := cached.([]Profile); ok {
			return loaded, nil
		}
	}
	value, err, _ := r.loads.Do(profilesCacheKey, func() (interface{}, error) {
		var loaded []Profile
		if err := r.db.WithContext(ctx).Order("account_id ASC").Find(&loaded).Error; err != nil {
			return nil, err
		}
		r.cache.Store(profilesCacheKey, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	loaded, ok := value.([]Profile)
	if !ok {
		return nil, errors.New("profiles: unexpected cache value")
	}
	return loaded, nil
}
