package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/jmcleod/ironlatch/auth"
)

func TestMemoryAccounts(t *testing.T) {
	store := NewStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &auth.Account{
		ID:        "acct-1",
		Email:     "user@example.com",
		Name:      "Test User",
		Active:    true,
		Role:      auth.RoleUser,
		Plan:      "free",
		CreatedAt: now,
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := store.CreateAccount(account); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}

		got, err := store.AccountByID("acct-1")
		if err != nil {
			t.Fatalf("AccountByID failed: %v", err)
		}
		if got.Email != account.Email || got.Name != account.Name {
			t.Errorf("AccountByID returned wrong account: %+v", got)
		}

		// Test isolation (cloning)
		got.Name = "Mutated"
		again, _ := store.AccountByID("acct-1")
		if again.Name != "Test User" {
			t.Error("stored account was mutated through a returned copy")
		}
	})

	t.Run("EmailUniqueness", func(t *testing.T) {
		dup := &auth.Account{ID: "acct-2", Email: "user@example.com"}
		if err := store.CreateAccount(dup); !errors.Is(err, auth.ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("ByEmail", func(t *testing.T) {
		got, err := store.AccountByEmail("user@example.com")
		if err != nil {
			t.Fatalf("AccountByEmail failed: %v", err)
		}
		if got.ID != "acct-1" {
			t.Errorf("expected acct-1, got %s", got.ID)
		}

		if _, err := store.AccountByEmail("ghost@example.com"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateReindexesEmail", func(t *testing.T) {
		updated := &auth.Account{ID: "acct-1", Email: "renamed@example.com", Name: "Test User"}
		if err := store.UpdateAccount(updated); err != nil {
			t.Fatalf("UpdateAccount failed: %v", err)
		}

		if _, err := store.AccountByEmail("user@example.com"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("old email still resolves: %v", err)
		}
		got, err := store.AccountByEmail("renamed@example.com")
		if err != nil || got.ID != "acct-1" {
			t.Errorf("new email does not resolve: %v", err)
		}

		// The freed address is reusable.
		if err := store.CreateAccount(&auth.Account{ID: "acct-3", Email: "user@example.com"}); err != nil {
			t.Errorf("freed email not reusable: %v", err)
		}
	})

	t.Run("ResetTokenHashLookup", func(t *testing.T) {
		acct, _ := store.AccountByID("acct-1")
		acct.ResetTokenHash = "deadbeef"
		if err := store.UpdateAccount(acct); err != nil {
			t.Fatalf("UpdateAccount failed: %v", err)
		}

		got, err := store.AccountByResetTokenHash("deadbeef")
		if err != nil || got.ID != "acct-1" {
			t.Errorf("AccountByResetTokenHash failed: %v", err)
		}
		if _, err := store.AccountByResetTokenHash("unknown"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		// An empty hash must never match accounts without a pending reset.
		if _, err := store.AccountByResetTokenHash(""); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("empty hash matched an account: %v", err)
		}
	})

	t.Run("UpdateUnknownAccount", func(t *testing.T) {
		err := store.UpdateAccount(&auth.Account{ID: "ghost", Email: "g@example.com"})
		if !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemorySessions(t *testing.T) {
	store := NewStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &auth.Session{
		ID:         "sess-1",
		AccountID:  "acct-1",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(2 * time.Hour),
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := store.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := store.CreateSession(sess); !errors.Is(err, auth.ErrSessionExists) {
			t.Errorf("expected ErrSessionExists, got %v", err)
		}

		got, err := store.SessionByID("sess-1")
		if err != nil || got.AccountID != "acct-1" {
			t.Fatalf("SessionByID failed: %v", err)
		}
	})

	t.Run("TouchRenewsPastThrottle", func(t *testing.T) {
		seen := now.Add(30 * time.Minute)
		got, err := store.TouchSession("sess-1", seen, 2*time.Hour, 10*time.Minute)
		if err != nil {
			t.Fatalf("TouchSession failed: %v", err)
		}
		if !got.LastSeenAt.Equal(seen) || !got.ExpiresAt.Equal(seen.Add(2*time.Hour)) {
			t.Errorf("TouchSession did not renew: %+v", got)
		}
		persisted, _ := store.SessionByID("sess-1")
		if !persisted.ExpiresAt.Equal(seen.Add(2 * time.Hour)) {
			t.Errorf("TouchSession did not persist: %+v", persisted)
		}

		if _, err := store.TouchSession("ghost", seen, 2*time.Hour, 0); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TouchWithinThrottleIsReadOnly", func(t *testing.T) {
		before, _ := store.SessionByID("sess-1")
		later := before.LastSeenAt.Add(time.Minute)
		got, err := store.TouchSession("sess-1", later, 2*time.Hour, 10*time.Minute)
		if err != nil {
			t.Fatalf("TouchSession failed: %v", err)
		}
		if !got.ExpiresAt.Equal(before.ExpiresAt) || !got.LastSeenAt.Equal(before.LastSeenAt) {
			t.Errorf("throttled touch mutated the row: %+v", got)
		}
	})

	t.Run("TouchDeletesExpiredRow", func(t *testing.T) {
		row, _ := store.SessionByID("sess-1")
		past := row.ExpiresAt.Add(time.Second)
		if _, err := store.TouchSession("sess-1", past, 2*time.Hour, 0); !errors.Is(err, auth.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
		// The delete happens inside the same call; the row is already gone.
		if _, err := store.SessionByID("sess-1"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expired row survived the touch: %v", err)
		}
		// Re-create for the subtests below.
		if err := store.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		if err := store.DeleteSession("sess-1"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if err := store.DeleteSession("sess-1"); err != nil {
			t.Errorf("second delete errored: %v", err)
		}
		if _, err := store.SessionByID("sess-1"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteForAccount", func(t *testing.T) {
		for _, id := range []string{"a1", "a2", "a3"} {
			store.CreateSession(&auth.Session{ID: id, AccountID: "acct-1", ExpiresAt: now.Add(time.Hour)})
		}
		store.CreateSession(&auth.Session{ID: "b1", AccountID: "acct-2", ExpiresAt: now.Add(time.Hour)})

		n, err := store.DeleteSessionsForAccount("acct-1")
		if err != nil || n != 3 {
			t.Fatalf("DeleteSessionsForAccount = %d, %v; want 3, nil", n, err)
		}
		if _, err := store.SessionByID("b1"); err != nil {
			t.Errorf("unrelated session removed: %v", err)
		}
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store.CreateSession(&auth.Session{ID: "old", AccountID: "acct-2", ExpiresAt: now.Add(-time.Hour)})
		store.CreateSession(&auth.Session{ID: "new", AccountID: "acct-2", ExpiresAt: now.Add(time.Hour)})

		n, err := store.DeleteExpiredSessions(now)
		if err != nil || n != 1 {
			t.Fatalf("DeleteExpiredSessions = %d, %v; want 1, nil", n, err)
		}
		if _, err := store.SessionByID("old"); !errors.Is(err, auth.ErrNotFound) {
			t.Errorf("expired session survived: %v", err)
		}
		if _, err := store.SessionByID("new"); err != nil {
			t.Errorf("live session removed: %v", err)
		}
	})
}

func TestMemoryAuditHistory(t *testing.T) {
	store := NewStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// ULID-style lexically ordered IDs: newest sorts last on append,
	// first on listing.
	logins := []*auth.LoginRecord{
		{ID: "01A", Email: "a@example.com", Success: true, CreatedAt: now},
		{ID: "01B", Email: "b@example.com", Success: false, CreatedAt: now.Add(time.Minute)},
		{ID: "01C", Email: "c@example.com", Success: true, CreatedAt: now.Add(2 * time.Minute)},
	}
	for _, rec := range logins {
		if err := store.AppendLoginRecord(rec); err != nil {
			t.Fatalf("AppendLoginRecord failed: %v", err)
		}
	}

	got, err := store.LoginRecords(10)
	if err != nil {
		t.Fatalf("LoginRecords failed: %v", err)
	}
	if len(got) != 3 || got[0].Email != "c@example.com" || got[2].Email != "a@example.com" {
		t.Errorf("LoginRecords not newest-first: %+v", got)
	}

	limited, err := store.LoginRecords(2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited LoginRecords = %d, %v; want 2, nil", len(limited), err)
	}
	if limited[0].Email != "c@example.com" {
		t.Errorf("limit kept the wrong end: %+v", limited)
	}

	if err := store.AppendLogoutRecord(&auth.LogoutRecord{ID: "01X", Email: "a@example.com", CreatedAt: now}); err != nil {
		t.Fatalf("AppendLogoutRecord failed: %v", err)
	}
	logouts, err := store.LogoutRecords(10)
	if err != nil || len(logouts) != 1 {
		t.Fatalf("LogoutRecords = %d, %v; want 1, nil", len(logouts), err)
	}
}
