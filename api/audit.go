package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditRegister         AuditEvent = "register"
	AuditRegisterFailure  AuditEvent = "register_failure"
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditResetRequested   AuditEvent = "reset_requested"
	AuditResetCompleted   AuditEvent = "reset_completed"
	AuditResetFailure     AuditEvent = "reset_failure"
	AuditResetRateLimited AuditEvent = "reset_rate_limited"
)

// auditLogger wraps slog.Logger for structured security audit logging at the
// HTTP edge. The persistent login/logout trail is written separately by the
// service; this log also covers request-level events (rate limiting,
// malformed attempts) that never reach the store.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "http_audit"),
	}
}

// log writes a structured audit log entry. Account IDs passed here are
// lookup hashes or opaque UUIDs, never email addresses or credentials.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logEvent is a convenience for events with an account ID.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, accountID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("account_id", accountID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed attempt with its reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
