// Package memory provides a thread-safe in-memory implementation of
// auth.Store. Suitable for testing, demos, and single-process use cases.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/jmcleod/ironlatch/auth"
)

// Store is a thread-safe in-memory implementation of auth.Store.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*auth.Account // by id
	emails   map[string]string       // normalized email -> account id
	sessions map[string]*auth.Session
	logins   []auth.LoginRecord
	logouts  []auth.LogoutRecord
}

var _ auth.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*auth.Account),
		emails:   make(map[string]string),
		sessions: make(map[string]*auth.Session),
	}
}

func cloneAccount(a *auth.Account) *auth.Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.SubscriptionUntil != nil {
		until := *a.SubscriptionUntil
		cp.SubscriptionUntil = &until
	}
	return &cp
}

func cloneSession(s *auth.Session) *auth.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func (m *Store) CreateAccount(a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.emails[a.Email]; taken {
		return auth.ErrEmailTaken
	}
	m.accounts[a.ID] = cloneAccount(a)
	m.emails[a.Email] = a.ID
	return nil
}

func (m *Store) AccountByID(id string) (*auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *Store) AccountByEmail(email string) (*auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneAccount(m.accounts[id]), nil
}

func (m *Store) AccountByResetTokenHash(hash string) (*auth.Account, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.ResetTokenHash == hash {
			return cloneAccount(a), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Store) UpdateAccount(a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.accounts[a.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if old.Email != a.Email {
		if existing, taken := m.emails[a.Email]; taken && existing != a.ID {
			return auth.ErrEmailTaken
		}
		delete(m.emails, old.Email)
		m.emails[a.Email] = a.ID
	}
	m.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (m *Store) CreateSession(s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return auth.ErrSessionExists
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *Store) SessionByID(id string) (*auth.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneSession(s), nil
}

// TouchSession holds the mutex across the expiry check, the expired-row
// delete, and the renewal, so concurrent callers serialize here.
func (m *Store) TouchSession(id string, now time.Time, idle, throttle time.Duration) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if now.After(s.ExpiresAt) {
		delete(m.sessions, id)
		return nil, auth.ErrSessionExpired
	}
	if now.Sub(s.LastSeenAt) >= throttle {
		s.LastSeenAt = now
		s.ExpiresAt = now.Add(idle)
	}
	return cloneSession(s), nil
}

func (m *Store) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Store) DeleteSessionsForAccount(accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Store) DeleteExpiredSessions(before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Store) AppendLoginRecord(rec *auth.LoginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, *rec)
	return nil
}

func (m *Store) AppendLogoutRecord(rec *auth.LogoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts = append(m.logouts, *rec)
	return nil
}

func (m *Store) LoginRecords(limit int) ([]auth.LoginRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auth.LoginRecord, len(m.logins))
	copy(out, m.logins)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) LogoutRecords(limit int) ([]auth.LogoutRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auth.LogoutRecord, len(m.logouts))
	copy(out, m.logouts)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
