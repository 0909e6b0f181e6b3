package profiles

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultLockDuration = 10 * time.Second
)

// ErrLocked indicates too many failed logins from one device.
var ErrLocked = errors.New("profiles: login temporarily locked")

// LockedError carries how long the lock has left.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: retry in %s", ErrLocked, e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// AttemptLimiterConfig tunes the failed-login lock.
type AttemptLimiterConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
	Clock        func() time.Time
}

type attemptState struct {
	failures    int
	lockedUntil time.Time
}

// AttemptLimiter locks a key after MaxAttempts consecutive failures.
type AttemptLimiter struct {
	mu           sync.Mutex
	states       map[string]*attemptState
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

// NewAttemptLimiter constructs a limiter; zero config values use three attempts and a ten second lock.
func NewAttemptLimiter(cfg AttemptLimiterConfig) *AttemptLimiter {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lockDuration := cfg.LockDuration
	if lockDuration <= 0 {
		lockDuration = defaultLockDuration
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AttemptLimiter{
		states:       make(map[string]*attemptState),
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		now:          clock,
	}
}

// Check returns a *LockedError while key is locked.
func (l *AttemptLimiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.states[key]
	if !ok {
		return nil
	}
	remaining := state.lockedUntil.Sub(l.now())
	if remaining > 0 {
		return &LockedError{RetryAfter: remaining}
	}
	if !state.lockedUntil.IsZero() {
		delete(l.states, key)
	}
	return nil
}

// Fail records a failed attempt and reports whether key is now locked.
func (l *AttemptLimiter) Fail(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.states[key]
	if !ok {
		state = &attemptState{}
		l.states[key] = state
	}
	state.failures++
	if state.failures >= l.maxAttempts {
		state.failures = 0
		state.lockedUntil = l.now().Add(l.lockDuration)
		return true
	}
	return false
}

// Reset clears the failure count for key.
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, key)
}
