// Package bbolt provides a BBolt-backed, single-file implementation of
// auth.Store.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/ironlatch/auth"
)

const (
	accountBucket        = "accounts"
	emailBucket          = "account_emails"
	sessionBucket        = "sessions"
	accountSessionBucket = "account_sessions"
	loginHistoryBucket   = "login_history"
	logoutHistoryBucket  = "logout_history"
)

// Store implements auth.Store backed by a BBolt database. BBolt's single
// writer serializes all mutations, which gives the per-row atomicity the
// session manager relies on for concurrent validate-and-touch calls.
type Store struct {
	db *bbolt.DB
}

var _ auth.Store = (*Store)(nil)

// NewStore wraps an open BBolt database and applies pending schema
// migrations.
func NewStore(db *bbolt.DB) (*Store, error) {
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens (creating if needed) a BBolt database at path and
// returns a migrated Store. Read-only opens skip migration and require the
// schema to already exist.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	if options != nil && options.ReadOnly {
		return &Store{db: db}, nil
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// accountSessionKey builds the composite index key for the per-account
// session index. Account ids are UUIDs and session ids are base64url, so
// '/' never appears in either side.
func accountSessionKey(accountID, sessionID string) []byte {
	return []byte(accountID + "/" + sessionID)
}

func (s *Store) CreateAccount(a *auth.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket([]byte(emailBucket))
		// Uniqueness check and insert share one write transaction, so a
		// concurrent registration with the same email cannot interleave.
		if emails.Get([]byte(a.Email)) != nil {
			return auth.ErrEmailTaken
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(accountBucket)).Put([]byte(a.ID), data); err != nil {
			return err
		}
		return emails.Put([]byte(a.Email), []byte(a.ID))
	})
}

func getAccount(tx *bbolt.Tx, id string) (*auth.Account, error) {
	data := tx.Bucket([]byte(accountBucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("account %s: %w", id, auth.ErrNotFound)
	}
	var a auth.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AccountByID(id string) (*auth.Account, error) {
	var account *auth.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		a, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) AccountByEmail(email string) (*auth.Account, error) {
	var account *auth.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(emailBucket)).Get([]byte(email))
		if id == nil {
			return auth.ErrNotFound
		}
		a, err := getAccount(tx, string(id))
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) AccountByResetTokenHash(hash string) (*auth.Account, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	var account *auth.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Full scan; reset tokens are rare and short-lived, so the account
		// set this walks is small and an index is not worth maintaining.
		c := tx.Bucket([]byte(accountBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a auth.Account
			if err := json.Unmarshal(v, &a); err != nil {
				continue
			}
			if a.ResetTokenHash == hash {
				account = &a
				return nil
			}
		}
		return auth.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) UpdateAccount(a *auth.Account) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		old, err := getAccount(tx, a.ID)
		if err != nil {
			return err
		}
		emails := tx.Bucket([]byte(emailBucket))
		if old.Email != a.Email {
			if existing := emails.Get([]byte(a.Email)); existing != nil && string(existing) != a.ID {
				return auth.ErrEmailTaken
			}
			if err := emails.Delete([]byte(old.Email)); err != nil {
				return err
			}
			if err := emails.Put([]byte(a.Email), []byte(a.ID)); err != nil {
				return err
			}
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(accountBucket)).Put([]byte(a.ID), data)
	})
}

func (s *Store) CreateSession(sess *auth.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(sessionBucket))
		if sessions.Get([]byte(sess.ID)) != nil {
			return auth.ErrSessionExists
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		if err := sessions.Put([]byte(sess.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(accountSessionBucket)).Put(accountSessionKey(sess.AccountID, sess.ID), nil)
	})
}

func (s *Store) SessionByID(id string) (*auth.Session, error) {
	var session *auth.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
		if data == nil {
			return auth.ErrNotFound
		}
		var sess auth.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		session = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// TouchSession runs the expiry check, the expired-row delete, and the
// conditional renewal inside a single write transaction; bbolt's single
// writer serializes concurrent touches of the same row. Expiry is reported
// through a flag rather than an error return so the delete still commits.
func (s *Store) TouchSession(id string, now time.Time, idle, throttle time.Duration) (*auth.Session, error) {
	var session *auth.Session
	var expired bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(sessionBucket))
		data := sessions.Get([]byte(id))
		if data == nil {
			return auth.ErrNotFound
		}
		var sess auth.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		if now.After(sess.ExpiresAt) {
			expired = true
			return deleteSessionTx(tx, id)
		}
		if now.Sub(sess.LastSeenAt) >= throttle {
			sess.LastSeenAt = now
			sess.ExpiresAt = now.Add(idle)
			updated, err := json.Marshal(&sess)
			if err != nil {
				return err
			}
			if err := sessions.Put([]byte(id), updated); err != nil {
				return err
			}
		}
		session = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, auth.ErrSessionExpired
	}
	return session, nil
}

func deleteSessionTx(tx *bbolt.Tx, id string) error {
	sessions := tx.Bucket([]byte(sessionBucket))
	data := sessions.Get([]byte(id))
	if data == nil {
		return nil
	}
	var sess auth.Session
	if err := json.Unmarshal(data, &sess); err == nil {
		if err := tx.Bucket([]byte(accountSessionBucket)).Delete(accountSessionKey(sess.AccountID, id)); err != nil {
			return err
		}
	}
	return sessions.Delete([]byte(id))
}

func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteSessionTx(tx, id)
	})
}

func (s *Store) DeleteSessionsForAccount(accountID string) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(accountSessionBucket))
		sessions := tx.Bucket([]byte(sessionBucket))
		prefix := []byte(accountID + "/")

		var indexKeys [][]byte
		c := index.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			indexKeys = append(indexKeys, append([]byte(nil), k...))
		}
		for _, k := range indexKeys {
			sid := k[len(prefix):]
			if err := sessions.Delete(sid); err != nil {
				return err
			}
			if err := index.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) DeleteExpiredSessions(before time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var expired []string
		c := tx.Bucket([]byte(sessionBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sess auth.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				// Corrupt row; remove it with the rest.
				expired = append(expired, string(k))
				continue
			}
			if sess.ExpiresAt.Before(before) {
				expired = append(expired, string(k))
			}
		}
		for _, id := range expired {
			if err := deleteSessionTx(tx, id); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Audit rows are keyed by their ULID, so bucket order is creation order and
// a reverse cursor walk yields newest first.

func (s *Store) AppendLoginRecord(rec *auth.LoginRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(loginHistoryBucket)).Put([]byte(rec.ID), data)
	})
}

func (s *Store) AppendLogoutRecord(rec *auth.LogoutRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(logoutHistoryBucket)).Put([]byte(rec.ID), data)
	})
}

func (s *Store) LoginRecords(limit int) ([]auth.LoginRecord, error) {
	var out []auth.LoginRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(loginHistoryBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec auth.LoginRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) LogoutRecords(limit int) ([]auth.LogoutRecord, error) {
	var out []auth.LogoutRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(logoutHistoryBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec auth.LogoutRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
