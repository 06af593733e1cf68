package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironlatch/auth"
	"github.com/jmcleod/ironlatch/storage/memory"
)

// capturingDispatcher records dispatched reset tokens instead of sending
// anything.
type capturingDispatcher struct {
	email string
	token string
}

func (d *capturingDispatcher) DispatchReset(email, token string, expiresAt time.Time) error {
	d.email = email
	d.token = token
	return nil
}

func fastHashParams() auth.Argon2idParams {
	return auth.Argon2idParams{
		Time:        1,
		MemoryKiB:   8 * 1024,
		Parallelism: 1,
		SaltLen:     16,
		KeyLen:      32,
	}
}

type serviceFixture struct {
	svc        *auth.Service
	store      *memory.Store
	clock      *fakeClock
	dispatcher *capturingDispatcher
}

func newServiceFixture(t *testing.T, cfg auth.Config) *serviceFixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewStore()
	dispatcher := &capturingDispatcher{}
	cfg.HashParams = fastHashParams()
	svc := auth.NewService(store, cfg,
		auth.WithClock(clock.Now),
		auth.WithDispatcher(dispatcher))
	return &serviceFixture{svc: svc, store: store, clock: clock, dispatcher: dispatcher}
}

func register(t *testing.T, f *serviceFixture, email string) *auth.Account {
	t.Helper()
	account, err := f.svc.Register(email, "a sound password", "Test User")
	require.NoError(t, err)
	return account
}

func login(t *testing.T, f *serviceFixture, email string) string {
	t.Helper()
	sessionID, err := f.svc.Login(email, "a sound password", "203.0.113.9", "test-agent/1.0")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)
	return sessionID
}

func TestRegisterDefaults(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})

	account := register(t, f, "user@example.com")
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "user@example.com", account.Email)
	assert.True(t, account.Active)
	assert.Equal(t, auth.RoleUser, account.Role)
	assert.Equal(t, "free", account.Plan)
	assert.Equal(t, auth.SubscriptionInactive, account.SubscriptionStatus)
	assert.NotEmpty(t, account.PasswordHash)
	assert.NotContains(t, account.PasswordHash, "a sound password")
}

func TestRegisterValidation(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})

	_, err := f.svc.Register("not-an-email", "a sound password", "Name")
	assert.ErrorIs(t, err, auth.ErrEmailInvalid)

	_, err = f.svc.Register("user@example.com", "short", "Name")
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)

	_, err = f.svc.Register("user@example.com", "a sound password", "")
	assert.ErrorIs(t, err, auth.ErrNameRequired)
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})

	register(t, f, "user@example.com")
	_, err := f.svc.Register("USER@example.com", "a sound password", "Other")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = f.svc.Register("  user@example.com ", "a sound password", "Other")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestLoginIssuesSessionAndAuditRow(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "user@example.com")

	sessionID := login(t, f, "user@example.com")

	account, err := f.svc.Authenticate(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Equal(t, f.clock.Now(), account.LastLoginAt)

	records, err := f.svc.LoginHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, "user@example.com", records[0].Email)
	assert.Equal(t, "203.0.113.9", records[0].IP)
	assert.NotEmpty(t, records[0].UAHash)
	assert.NotContains(t, records[0].UAHash, "test-agent")
}

func TestLoginFailuresCollapse(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "user@example.com")

	// Wrong password and unknown account yield the identical sentinel.
	_, errWrongPassword := f.svc.Login("user@example.com", "wrong password", "", "")
	_, errUnknownAccount := f.svc.Login("ghost@example.com", "whatever pass", "", "")
	assert.ErrorIs(t, errWrongPassword, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknownAccount, auth.ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errUnknownAccount.Error())

	// Both failures are audited, including the attempt against the
	// nonexistent account.
	records, err := f.svc.LoginHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.Equal(t, "ghost@example.com", records[0].Email)
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "user@example.com")

	sessionID, err := f.svc.Login("User@Example.COM", "a sound password", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
}

func TestAuthenticateExpiredSession(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "user@example.com")
	sessionID := login(t, f, "user@example.com")

	f.clock.Advance(auth.DefaultIdleWindow + time.Minute)

	_, err := f.svc.Authenticate(sessionID)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)

	// Second attempt: the row is gone.
	_, err = f.svc.Authenticate(sessionID)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestAuthenticateInactiveAccountRevokesSession(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	account := register(t, f, "user@example.com")
	sessionID := login(t, f, "user@example.com")

	account.Active = false
	require.NoError(t, f.store.UpdateAccount(account))

	_, err := f.svc.Authenticate(sessionID)
	assert.ErrorIs(t, err, auth.ErrInactiveAccount)

	// The session was deleted on sight; the next attempt fails as invalid.
	_, err = f.svc.Authenticate(sessionID)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)
}

func TestLogoutWritesAuditBeforeDelete(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	account := register(t, f, "user@example.com")
	sessionID := login(t, f, "user@example.com")

	f.svc.Logout(sessionID, "203.0.113.9")

	_, err := f.svc.Authenticate(sessionID)
	assert.ErrorIs(t, err, auth.ErrInvalidSession)

	// The logout row resolved its account before the session vanished.
	records, err := f.svc.LogoutHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, account.ID, records[0].AccountID)
	assert.Equal(t, "user@example.com", records[0].Email)
	assert.Equal(t, sessionID, records[0].SessionID)
	assert.Equal(t, "203.0.113.9", records[0].IP)
}

func TestLogoutUnknownSessionStillAudited(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})

	f.svc.Logout("never-issued", "203.0.113.9")
	f.svc.Logout("", "203.0.113.9")

	records, err := f.svc.LogoutHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Unresolvable sessions leave the identity fields empty.
	assert.Empty(t, records[1].AccountID)
	assert.Equal(t, "never-issued", records[1].SessionID)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	account := register(t, f, "user@example.com")

	// Three live sessions before the reset.
	sessions := []string{
		login(t, f, "user@example.com"),
		login(t, f, "user@example.com"),
		login(t, f, "user@example.com"),
	}

	require.NoError(t, f.svc.RequestPasswordReset("user@example.com"))
	require.Equal(t, "user@example.com", f.dispatcher.email)
	require.NotEmpty(t, f.dispatcher.token)

	// The raw token never hits the store.
	stored, err := f.store.AccountByID(account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ResetTokenHash)
	assert.NotEqual(t, f.dispatcher.token, stored.ResetTokenHash)

	require.NoError(t, f.svc.CompletePasswordReset(f.dispatcher.token, "a brand new password"))

	// Every pre-reset session is dead.
	for _, id := range sessions {
		_, err := f.svc.Authenticate(id)
		assert.ErrorIs(t, err, auth.ErrInvalidSession)
	}

	// Old password no longer works, new one does.
	_, err = f.svc.Login("user@example.com", "a sound password", "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.svc.Login("user@example.com", "a brand new password", "", "")
	assert.NoError(t, err)

	// The token is single-use.
	err = f.svc.CompletePasswordReset(f.dispatcher.token, "yet another password")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})

	require.NoError(t, f.svc.RequestPasswordReset("ghost@example.com"))
	assert.Empty(t, f.dispatcher.token)
}

func TestPasswordResetTokenExpiry(t *testing.T) {
	f := newServiceFixture(t, auth.Config{ResetTokenTTL: 30 * time.Minute})
	register(t, f, "user@example.com")

	require.NoError(t, f.svc.RequestPasswordReset("user@example.com"))
	token := f.dispatcher.token

	f.clock.Advance(31 * time.Minute)
	err := f.svc.CompletePasswordReset(token, "a brand new password")
	assert.ErrorIs(t, err, auth.ErrResetTokenExpired)
}

func TestPasswordResetRejectsBadInput(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "user@example.com")

	err := f.svc.CompletePasswordReset("", "a brand new password")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)

	err = f.svc.CompletePasswordReset("bogus-token", "a brand new password")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)

	require.NoError(t, f.svc.RequestPasswordReset("user@example.com"))
	err = f.svc.CompletePasswordReset(f.dispatcher.token, "short")
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)

	// A rejected password leaves the token alive for a corrected retry.
	err = f.svc.CompletePasswordReset(f.dispatcher.token, "a brand new password")
	assert.NoError(t, err)
}

func TestEffectiveRole(t *testing.T) {
	f := newServiceFixture(t, auth.Config{AdminEmails: []string{"Ops@Example.com"}})
	account := register(t, f, "user@example.com")
	elevated := register(t, f, "ops@example.com")

	assert.Equal(t, auth.RoleUser, f.svc.EffectiveRole(account))
	// Allow-list matching is case-insensitive on both sides.
	assert.Equal(t, auth.RoleAdmin, f.svc.EffectiveRole(elevated))

	account.Role = auth.RoleSuperadmin
	assert.Equal(t, auth.RoleSuperadmin, f.svc.EffectiveRole(account))
}

func TestIsSubscriber(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	account := register(t, f, "user@example.com")

	assert.False(t, f.svc.IsSubscriber(account))

	until := f.clock.Now().Add(24 * time.Hour)
	account.SubscriptionStatus = auth.SubscriptionActive
	account.SubscriptionUntil = &until
	assert.True(t, f.svc.IsSubscriber(account))

	f.clock.Advance(25 * time.Hour)
	assert.False(t, f.svc.IsSubscriber(account))

	// Active with no end date is indefinite.
	account.SubscriptionUntil = nil
	assert.True(t, f.svc.IsSubscriber(account))
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newServiceFixture(t, auth.Config{})
	register(t, f, "a@example.com")
	register(t, f, "b@example.com")

	_, err := f.svc.Login("a@example.com", "a sound password", "", "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Login("b@example.com", "a sound password", "", "")
	require.NoError(t, err)

	records, err := f.svc.LoginHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b@example.com", records[0].Email)
	assert.Equal(t, "a@example.com", records[1].Email)

	limited, err := f.svc.LoginHistory(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b@example.com", limited[0].Email)
}
