package bbolt

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// migration is one idempotent schema step. Migrations run in list order at
// startup; applied names are recorded in the meta bucket so each step runs
// at most once per database file.
type migration struct {
	name  string
	apply func(tx *bbolt.Tx) error
}

const metaBucket = "schema_migrations"

func createBuckets(names ...string) func(tx *bbolt.Tx) error {
	return func(tx *bbolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	}
}

// migrations is the ordered, append-only schema history. New steps go at
// the end; existing entries must never be reordered or renamed.
var migrations = []migration{
	{"001-accounts", createBuckets(accountBucket, emailBucket)},
	{"002-sessions", createBuckets(sessionBucket, accountSessionBucket)},
	{"003-audit-history", createBuckets(loginHistoryBucket, logoutHistoryBucket)},
}

// migrate applies any pending migrations inside a single write transaction.
func migrate(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("creating migration meta bucket: %w", err)
		}
		for _, m := range migrations {
			if meta.Get([]byte(m.name)) != nil {
				continue
			}
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("migration %s: %w", m.name, err)
			}
			stamp := time.Now().UTC().Format(time.RFC3339)
			if err := meta.Put([]byte(m.name), []byte(stamp)); err != nil {
				return fmt.Errorf("recording migration %s: %w", m.name, err)
			}
		}
		return nil
	})
}
