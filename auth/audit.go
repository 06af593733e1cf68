package auth

import (
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditRecorder appends immutable login/logout history rows and mirrors each
// event to the structured log.
//
// Audit completeness is best-effort relative to the primary operation: a
// failed append never aborts the login or logout it accompanies, but it is
// surfaced to operational logging as a distinct anomaly.
type AuditRecorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditRecorder creates an audit recorder writing rows to store and
// events to logger.
func NewAuditRecorder(store Store, logger *slog.Logger) *AuditRecorder {
	return &AuditRecorder{
		store:  store,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// RecordLogin appends a login attempt row. Failed attempts are recorded too,
// to support brute-force and anomaly analysis.
func (a *AuditRecorder) RecordLogin(email string, success bool, ip, uaHash string) {
	rec := &LoginRecord{
		ID:        ulid.Make().String(),
		Email:     NormalizeEmail(email),
		Success:   success,
		IP:        ip,
		UAHash:    uaHash,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.AppendLoginRecord(rec); err != nil {
		a.logger.Warn("login audit append failed", "error", err, "email", rec.Email)
	}
	a.logger.Info("login attempt",
		"event", "login",
		"email", rec.Email,
		"success", success,
		"ip", ip,
	)
}

// RecordLogout appends a logout row. Callers must invoke this strictly
// before deleting the session so the identifying fields remain recoverable;
// a logout call with no resolvable session is still an operational event
// worth recording.
func (a *AuditRecorder) RecordLogout(accountID, email, sessionID, ip string) {
	rec := &LogoutRecord{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		Email:     NormalizeEmail(email),
		SessionID: sessionID,
		IP:        ip,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.AppendLogoutRecord(rec); err != nil {
		a.logger.Warn("logout audit append failed", "error", err, "account_id", accountID)
	}
	a.logger.Info("logout",
		"event", "logout",
		"account_id", accountID,
		"email", rec.Email,
		"ip", ip,
	)
}
