package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/ironlatch/internal/util"
)

const (
	// DefaultIdleWindow is sized for a single uninterrupted consultation
	// session: a session stays alive for two hours past its last renewal.
	DefaultIdleWindow = 2 * time.Hour
	// DefaultRenewalThrottle bounds the store-write rate to roughly one
	// write per session per interval regardless of request frequency.
	DefaultRenewalThrottle = 10 * time.Minute

	// sessionTokenBytes gives 256 bits of entropy per session identifier.
	sessionTokenBytes = 32
	// createRetries bounds retries on the statistically negligible case of
	// a session identifier collision.
	createRetries = 3
)

// SessionManager issues, validates, renews, and revokes server-side
// sessions. Expired rows are garbage-collected lazily, on the validation
// attempt that detects them; no background sweep is required for
// correctness.
type SessionManager struct {
	store    Store
	idle     time.Duration
	throttle time.Duration
	now      func() time.Time

	sweepOnce sync.Once
	sweepStop chan struct{}
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithIdleWindow overrides the idle-timeout window.
func WithIdleWindow(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithRenewalThrottle overrides the rolling-renewal throttle interval.
func WithRenewalThrottle(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d >= 0 {
			m.throttle = d
		}
	}
}

// WithSessionClock overrides the time source, for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a session manager over the given store.
func NewSessionManager(store Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:     store,
		idle:      DefaultIdleWindow,
		throttle:  DefaultRenewalThrottle,
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a fresh session for the account and returns it. The
// identifier is an unguessable random token; creation retries only on the
// negligible chance of a collision.
func (m *SessionManager) Create(accountID, ip, uaHash string) (*Session, error) {
	now := m.now().UTC()
	for i := 0; i < createRetries; i++ {
		id, err := util.Token(sessionTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generating session id: %w", err)
		}
		s := &Session{
			ID:         id,
			AccountID:  accountID,
			CreatedAt:  now,
			LastSeenAt: now,
			ExpiresAt:  now.Add(m.idle),
			IP:         ip,
			UAHash:     uaHash,
		}
		err = m.store.CreateSession(s)
		if errors.Is(err, ErrSessionExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting session: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("session id collision persisted across %d attempts", createRetries)
}

// ValidateAndTouch checks a session and returns the owning account id.
//
// An absent row fails with ErrInvalidSession. A row past its expiry is
// deleted immediately and fails with ErrSessionExpired. On the valid path
// the session is extended (last-seen and expiry move to now and now+idle)
// only when the renewal throttle has elapsed since the last write; within
// the throttle window validation performs zero writes, trading slight
// last-seen staleness for a bounded write rate.
//
// The expiry check, the expired-row delete, and the renewal all happen
// inside one store transaction, so two requests racing at the expiry
// boundary cannot delete a row the other just extended.
func (m *SessionManager) ValidateAndTouch(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidSession
	}
	s, err := m.store.TouchSession(id, m.now().UTC(), m.idle, m.throttle)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", ErrInvalidSession
	case errors.Is(err, ErrSessionExpired):
		return "", ErrSessionExpired
	case err != nil:
		return "", fmt.Errorf("validating session: %w", err)
	}
	return s.AccountID, nil
}

// IdleWindow returns the configured idle-timeout window.
func (m *SessionManager) IdleWindow() time.Duration {
	return m.idle
}

// Delete revokes a session. Deleting an absent or already-deleted session
// is a no-op.
func (m *SessionManager) Delete(id string) error {
	if id == "" {
		return nil
	}
	return m.store.DeleteSession(id)
}

// DeleteAllForAccount revokes every session the account holds, for example
// after a credential change. Returns the number of sessions revoked.
func (m *SessionManager) DeleteAllForAccount(accountID string) (int, error) {
	return m.store.DeleteSessionsForAccount(accountID)
}

// StartSweeper begins a periodic hygiene sweep deleting rows whose expiry
// lies more than one idle window in the past. The sweep is optional:
// abandoned rows are harmless until queried and are removed lazily on
// validation anyway. Call StopSweeper on shutdown.
func (m *SessionManager) StartSweeper(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.sweepStop:
				return
			case <-ticker.C:
				cutoff := m.now().UTC().Add(-m.idle)
				n, err := m.store.DeleteExpiredSessions(cutoff)
				if err != nil {
					logger.Warn("session sweep failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("session sweep removed expired rows", "count", n)
				}
			}
		}
	}()
}

// StopSweeper stops the hygiene sweep, if one was started.
func (m *SessionManager) StopSweeper() {
	m.sweepOnce.Do(func() { close(m.sweepStop) })
}
