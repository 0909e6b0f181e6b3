package device

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const seedLength = 13

var errMissingStore = errors.New("device: store is required")

// Store persists the installation's identity as a single string value.
type Store interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, value string) error
}

// SeedSource produces a fresh random seed for a new fingerprint.
type SeedSource func() (string, error)

// ProviderConfig describes the dependencies of a Provider.
type ProviderConfig struct {
	Store       Store
	Environment Environment
	Seed        SeedSource
	Logger      *zap.Logger
}

// Provider derives the identity on first use and returns the persisted value afterwards.
type Provider struct {
	mu     sync.Mutex
	store  Store
	env    Environment
	seed   SeedSource
	logger *zap.Logger
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	seed := cfg.Seed
	if seed == nil {
		seed = RandomSeed
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		store:  cfg.Store,
		env:    cfg.Environment,
		seed:   seed,
		logger: logger,
	}, nil
}

// DeviceID returns the installation's identity, creating and persisting it if absent.
func (p *Provider) DeviceID(ctx context.Context) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, found, err := p.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: load: %v", ErrStorageUnavailable, err)
	}
	if found {
		return NewID(stored)
	}

	seed, err := p.seed()
	if err != nil {
		return "", fmt.Errorf("device: seed: %w", err)
	}
	id := Derive(p.env, seed)
	if err := p.store.Save(ctx, id.String()); err != nil {
		return "", fmt.Errorf("%w: save: %v", ErrStorageUnavailable, err)
	}
	p.logger.Info("device identity created", zap.String("device_id", id.String()))
	return id, nil
}

// RandomSeed returns 13 base36 characters drawn from a random UUID.
func RandomSeed() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	encoded := new(big.Int).SetBytes(value[:]).Text(36)
	if len(encoded) > seedLength {
		encoded = encoded[:seedLength]
	}
	return encoded, nil
}
