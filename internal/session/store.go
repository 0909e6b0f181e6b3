// Package session holds the account snapshot of each logged-in session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound indicates an unknown or closed session.
var ErrNotFound = errors.New("session: not found")

// Session is one login's view of its account.
type Session struct {
	ID        string
	Account   ledger.Account
	CreatedAt time.Time
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	IDSource func() (string, error)
	Clock    func() time.Time
	Logger   *zap.Logger
}

type entry struct {
	// turn is a one-slot semaphore so waiters can give up when their context ends.
	turn    chan struct{}
	session Session
}

// Store keeps sessions in memory. Updates to one session run one at a time.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	newID    func() (string, error)
	now      func() time.Time
	logger   *zap.Logger
}

// NewStore constructs an empty session store.
func NewStore(cfg StoreConfig) *Store {
	idSource := cfg.IDSource
	if idSource == nil {
		idSource = func() (string, error) {
			value, err := uuid.NewRandom()
			if err != nil {
				return "", err
			}
			return value.String(), nil
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*entry),
		newID:    idSource,
		now:      clock,
		logger:   logger,
	}
}

// Open starts a session for account.
func (s *Store) Open(_ context.Context, account ledger.Account) (Session, error) {
	sessionID, err := s.newID()
	if err != nil {
		return Session{}, fmt.Errorf("session: id generation failed: %w", err)
	}
	created := Session{ID: sessionID, Account: account.Clone(), CreatedAt: s.now().UTC()}

	s.mu.Lock()
	s.sessions[sessionID] = &entry{turn: make(chan struct{}, 1), session: created}
	s.mu.Unlock()

	s.logger.Info("session opened",
		zap.String("session_id", sessionID),
		zap.String("account_id", account.ID),
		zap.String("device_id", account.BoundDevice.String()))
	return cloneSession(created), nil
}

// Get returns the committed snapshot of a session.
func (s *Store) Get(ctx context.Context, sessionID string) (Session, error) {
	current, err := s.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := acquire(ctx, current); err != nil {
		return Session{}, err
	}
	defer release(current)
	return cloneSession(current.session), nil
}

// Update runs fn with the session's account and commits its result only when fn returns nil.
// Calls for the same session are serialized.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(ledger.Account) (ledger.Account, error)) (ledger.Account, error) {
	current, err := s.lookup(sessionID)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := acquire(ctx, current); err != nil {
		return ledger.Account{}, err
	}
	defer release(current)

	updated, err := fn(current.session.Account.Clone())
	if err != nil {
		return current.session.Account.Clone(), err
	}
	current.session.Account = updated.Clone()
	return updated, nil
}

// Close forgets a session.
func (s *Store) Close(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return current, nil
}

func acquire(ctx context.Context, current *entry) error {
	select {
	case current.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(current *entry) {
	<-current.turn
}

func cloneSession(value Session) Session {
	value.Account = value.Account.Clone()
	return value
}
