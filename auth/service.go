package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironlatch/internal/util"
)

// Config is the process-wide policy snapshot for the authentication
// service. It is constructed once at startup and injected; business logic
// never reads configuration from global scope.
type Config struct {
	// IdleWindow is the session idle timeout. Zero means DefaultIdleWindow.
	IdleWindow time.Duration
	// RenewalThrottle is the minimum interval between session-renewal
	// writes. Zero means DefaultRenewalThrottle.
	RenewalThrottle time.Duration
	// MinPasswordLength is the registration and reset password floor. Zero
	// means DefaultMinPasswordLength.
	MinPasswordLength int
	// ResetTokenTTL bounds reset-token validity. Zero means
	// DefaultResetTokenTTL.
	ResetTokenTTL time.Duration
	// ResetSecret keys the HMAC under which reset tokens are stored. It is
	// wiped during service construction. Must be injected, never defaulted
	// in shipped configuration.
	ResetSecret []byte
	// AdminEmails elevates the listed (normalized) addresses to the admin
	// role regardless of the stored role column.
	AdminEmails []string
	// DefaultRole and DefaultPlan are assigned to newly registered
	// accounts. Empty means role "user" on plan "free".
	DefaultRole Role
	DefaultPlan string
	// ResetBaseURL prefixes reset links produced by the default dispatcher.
	ResetBaseURL string
	// HashParams tunes credential hashing. Zero-valued fields fall back to
	// production defaults.
	HashParams Argon2idParams
}

// Service is the authentication service boundary. It composes the account
// registry, credential manager, session manager, and audit recorder over a
// single store.
type Service struct {
	store       Store
	accounts    *AccountRegistry
	creds       *CredentialManager
	sessions    *SessionManager
	audit       *AuditRecorder
	resetSecret *memguard.Enclave
	resetTTL    time.Duration
	minPassword int
	dispatcher  ResetDispatcher
	adminEmails map[string]struct{}
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to a JSON logger on
// stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests. The clock propagates to
// the session manager, registry, and audit recorder.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithDispatcher sets the out-of-band reset-token dispatcher.
func WithDispatcher(d ResetDispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// NewService builds the service boundary from configuration. cfg.ResetSecret
// is wiped as a side effect; the key lives on only inside an enclave.
func NewService(store Store, cfg Config, opts ...Option) *Service {
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = DefaultIdleWindow
	}
	if cfg.RenewalThrottle <= 0 {
		cfg.RenewalThrottle = DefaultRenewalThrottle
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = DefaultMinPasswordLength
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	if len(cfg.ResetSecret) == 0 {
		// Ephemeral fallback for development; outstanding reset tokens die
		// with the process.
		secret, _ := util.RandomBytes(32)
		cfg.ResetSecret = secret
	}
	if cfg.ResetBaseURL == "" {
		cfg.ResetBaseURL = "http://localhost:3000"
	}

	s := &Service{
		store:       store,
		resetSecret: newResetSecret(cfg.ResetSecret),
		resetTTL:    cfg.ResetTokenTTL,
		minPassword: cfg.MinPasswordLength,
		adminEmails: make(map[string]struct{}, len(cfg.AdminEmails)),
		now:         time.Now,
	}
	for _, email := range cfg.AdminEmails {
		if norm := NormalizeEmail(email); norm != "" {
			s.adminEmails[norm] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if s.dispatcher == nil {
		s.dispatcher = &LogDispatcher{Logger: s.logger, BaseURL: cfg.ResetBaseURL}
	}

	s.creds = NewCredentialManager(cfg.HashParams)
	s.accounts = NewAccountRegistry(store, s.creds,
		WithMinPasswordLength(cfg.MinPasswordLength),
		WithDefaults(cfg.DefaultRole, cfg.DefaultPlan),
		WithRegistryClock(s.now),
	)
	s.sessions = NewSessionManager(store,
		WithIdleWindow(cfg.IdleWindow),
		WithRenewalThrottle(cfg.RenewalThrottle),
		WithSessionClock(s.now),
	)
	s.audit = NewAuditRecorder(store, s.logger)
	s.audit.now = s.now
	return s
}

// Sessions exposes the session manager, for wiring the optional hygiene
// sweep and for revocation tooling.
// Now returns the service's current time. Client-facing artifacts stamped
// at the HTTP edge, such as cookie expiries, use this so they stay aligned
// with the clock the session rows are judged against.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Register creates an account with default role, plan, and subscription
// state. It never authenticates the caller.
func (s *Service) Register(email, password, name string) (*Account, error) {
	return s.accounts.Register(email, password, name)
}

// Login verifies credentials and, on success, records the audit row,
// updates the last-login timestamp, and issues a session.
//
// An unknown email and a wrong password produce the same
// ErrInvalidCredentials; the distinction is never user-visible. Both
// outcomes are audited.
func (s *Service) Login(email, password, ip, userAgent string) (string, error) {
	uaHash := util.HashUserAgent(userAgent)
	account, err := s.accounts.ByEmail(email)
	if errors.Is(err, ErrNotFound) {
		s.audit.RecordLogin(email, false, ip, uaHash)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("looking up account: %w", err)
	}
	if !s.creds.Verify(password, account.PasswordHash) {
		s.audit.RecordLogin(email, false, ip, uaHash)
		return "", ErrInvalidCredentials
	}

	s.audit.RecordLogin(email, true, ip, uaHash)

	account.LastLoginAt = s.now().UTC()
	if err := s.store.UpdateAccount(account); err != nil {
		s.logger.Warn("updating last-login timestamp failed", "error", err, "account_id", account.ID)
	}

	session, err := s.sessions.Create(account.ID, ip, uaHash)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// Authenticate resolves a session identifier to its account, renewing the
// session subject to the rolling throttle. A deactivated account's session
// is deleted on sight so revocation takes effect on the very next request.
func (s *Service) Authenticate(sessionID string) (*Account, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}
	accountID, err := s.sessions.ValidateAndTouch(sessionID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.ByID(accountID)
	if errors.Is(err, ErrNotFound) {
		// Account deleted out from under a live session. Clean up.
		_ = s.sessions.Delete(sessionID)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if !account.Active {
		if err := s.sessions.Delete(sessionID); err != nil {
			s.logger.Warn("deleting session of inactive account failed", "error", err)
		}
		return nil, ErrInactiveAccount
	}
	return account, nil
}

// Logout revokes a session. It is idempotent and never fails from the
// caller's perspective: logging out with no session, or with a session that
// no longer resolves, still appends a logout audit row.
//
// Resolution and audit happen strictly before the row is deleted, so the
// record keeps its identifying fields even after the session is gone.
func (s *Service) Logout(sessionID, ip string) {
	var accountID, email string
	if sessionID != "" {
		if session, err := s.store.SessionByID(sessionID); err == nil {
			accountID = session.AccountID
			if account, err := s.accounts.ByID(accountID); err == nil {
				email = account.Email
			}
		}
	}

	s.audit.RecordLogout(accountID, email, sessionID, ip)

	if sessionID != "" {
		if err := s.sessions.Delete(sessionID); err != nil {
			s.logger.Warn("logout session delete failed", "error", err)
		}
	}
}

// RequestPasswordReset issues a single-use reset token for the account, if
// one exists, and hands the raw token to the dispatcher. The outcome is
// identical whether or not the email is registered, to prevent account
// enumeration.
func (s *Service) RequestPasswordReset(email string) error {
	account, err := s.accounts.ByEmail(email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	raw, err := util.Token(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}
	hash, err := resetTokenHash(s.resetSecret, raw)
	if err != nil {
		return err
	}
	expiry := s.now().UTC().Add(s.resetTTL)

	account.ResetTokenHash = hash
	account.ResetTokenExpiry = expiry
	if err := s.store.UpdateAccount(account); err != nil {
		return fmt.Errorf("persisting reset token: %w", err)
	}

	if err := s.dispatcher.DispatchReset(account.Email, raw, expiry); err != nil {
		// Dispatch failures must not change the response shape.
		s.logger.Warn("reset token dispatch failed", "error", err, "account_id", account.ID)
	}
	return nil
}

// CompletePasswordReset replaces the credential named by a valid reset
// token, invalidates the token, and revokes every session the account
// holds. The bulk revocation completes before this returns: reset implies
// all old sessions dead.
func (s *Service) CompletePasswordReset(token, newPassword string) error {
	if token == "" {
		return ErrResetTokenInvalid
	}
	hash, err := resetTokenHash(s.resetSecret, token)
	if err != nil {
		return err
	}
	account, err := s.store.AccountByResetTokenHash(hash)
	if errors.Is(err, ErrNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("looking up reset token: %w", err)
	}
	if s.now().UTC().After(account.ResetTokenExpiry) {
		return ErrResetTokenExpired
	}
	if len(newPassword) < s.minPassword {
		return ErrPasswordTooShort
	}
	newHash, err := s.creds.Hash(newPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = newHash
	account.ResetTokenHash = ""
	account.ResetTokenExpiry = time.Time{}
	if err := s.store.UpdateAccount(account); err != nil {
		return fmt.Errorf("persisting new credential: %w", err)
	}

	if _, err := s.sessions.DeleteAllForAccount(account.ID); err != nil {
		return fmt.Errorf("revoking sessions after reset: %w", err)
	}
	return nil
}

// EffectiveRole resolves the role used for authorization decisions: a
// stored superadmin stays superadmin, the configured allow-list elevates to
// admin, and the stored role applies otherwise.
func (s *Service) EffectiveRole(a *Account) Role {
	if a.Role == RoleSuperadmin {
		return RoleSuperadmin
	}
	if _, ok := s.adminEmails[NormalizeEmail(a.Email)]; ok {
		return RoleAdmin
	}
	return a.Role
}

// IsSubscriber reports whether the account's subscription is active now.
func (s *Service) IsSubscriber(a *Account) bool {
	return a.IsSubscriber(s.now().UTC())
}

// LoginHistory returns up to limit login audit rows, newest first.
func (s *Service) LoginHistory(limit int) ([]LoginRecord, error) {
	return s.store.LoginRecords(limit)
}

// LogoutHistory returns up to limit logout audit rows, newest first.
func (s *Service) LogoutHistory(limit int) ([]LogoutRecord, error) {
	return s.store.LogoutRecords(limit)
}
