package auth

import "time"

// Store is the persistence boundary for accounts, sessions, and audit
// history. Implementations must make CreateAccount's email-uniqueness check
// atomic with the insert, and TouchSession a single transaction covering
// the expiry check, the expired-row delete, and the conditional renewal, so
// that concurrent requests serialize at the storage layer.
//
// Implementations return ErrNotFound, ErrEmailTaken, ErrSessionExists, and
// ErrSessionExpired from this package.
type Store interface {
	// CreateAccount inserts a new account. Fails with ErrEmailTaken when the
	// normalized email is already registered; the check is atomic with the
	// insert.
	CreateAccount(a *Account) error
	// AccountByID returns the account or ErrNotFound.
	AccountByID(id string) (*Account, error)
	// AccountByEmail looks up by normalized email. Returns ErrNotFound when
	// absent.
	AccountByEmail(email string) (*Account, error)
	// AccountByResetTokenHash returns the account holding the given reset
	// token hash, or ErrNotFound.
	AccountByResetTokenHash(hash string) (*Account, error)
	// UpdateAccount replaces an existing account row. Fails with ErrNotFound
	// when the account does not exist.
	UpdateAccount(a *Account) error

	// CreateSession inserts a new session row. Fails with ErrSessionExists
	// on an identifier collision.
	CreateSession(s *Session) error
	// SessionByID returns the session row or ErrNotFound. It is a plain
	// read: expiry is interpreted only by TouchSession.
	SessionByID(id string) (*Session, error)
	// TouchSession validates and renews a session in one transaction
	// evaluated at now. An absent row fails with ErrNotFound. A row whose
	// expiry lies strictly before now is deleted in the same transaction
	// and fails with ErrSessionExpired. A live row is extended (last seen
	// moves to now, expiry to now+idle) only when at least throttle has
	// elapsed since the last renewal; within the throttle window the row is
	// returned unchanged with no write. Returns the resulting row on the
	// valid path. Two requests racing at the expiry boundary therefore
	// serialize inside the store: one wins, and the loser observes the
	// winner's outcome rather than undoing it.
	TouchSession(id string, now time.Time, idle, throttle time.Duration) (*Session, error)
	// DeleteSession removes a session row. Deleting an absent session is a
	// no-op, not an error.
	DeleteSession(id string) error
	// DeleteSessionsForAccount removes every session owned by the account
	// and returns the number removed.
	DeleteSessionsForAccount(accountID string) (int, error)
	// DeleteExpiredSessions removes sessions whose expiry lies before the
	// given cutoff and returns the number removed. Used only by the optional
	// hygiene sweep; correctness never depends on it.
	DeleteExpiredSessions(before time.Time) (int, error)

	// AppendLoginRecord appends an immutable login audit row.
	AppendLoginRecord(rec *LoginRecord) error
	// AppendLogoutRecord appends an immutable logout audit row.
	AppendLogoutRecord(rec *LogoutRecord) error
	// LoginRecords returns up to limit records, newest first.
	LoginRecords(limit int) ([]LoginRecord, error)
	// LogoutRecords returns up to limit records, newest first.
	LogoutRecords(limit int) ([]LogoutRecord, error)
}
