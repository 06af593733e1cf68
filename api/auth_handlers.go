package api

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/ironlatch/auth"
)

// accountLookupID derives the rate-limit key for an email address. It is a
// SHA-256 hash of the normalized address, never the address itself, so
// limiter state is safe for maps and logs.
func accountLookupID(email string) string {
	sum := sha256.Sum256([]byte(auth.NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	account, err := a.svc.Register(req.Email, req.Password, req.Name)
	if err != nil {
		a.audit.logFailure(AuditRegisterFailure, r, err.Error())
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRegister, r, account.ID)
	writeJSON(w, http.StatusCreated, a.accountResponse(account))
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	accountID := accountLookupID(req.Email)
	clientIP := a.extractClientIP(r)

	// Check rate limits before the expensive password verify: global → IP →
	// per-account.
	if blocked, retryAfter := a.globalLimiter.check(); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "global rate limited")
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.rateLimiter.check(accountID); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "rate limited",
			slog.String("account_id", accountID))
		writeRateLimited(w, retryAfter)
		return
	}

	sessionID, err := a.svc.Login(req.Email, req.Password, clientIP, r.UserAgent())
	if err != nil {
		a.globalLimiter.recordFailure()
		a.ipLimiter.recordFailure(clientIP)
		a.rateLimiter.recordFailure(accountID)
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("account_id", accountID))
		mapError(w, err)
		return
	}

	// Login succeeded; clear rate-limit state.
	a.rateLimiter.recordSuccess(accountID)
	a.ipLimiter.recordSuccess(clientIP)

	expiresAt := a.svc.Now().UTC().Add(a.svc.Sessions().IdleWindow())
	a.writeSessionCookie(w, r, sessionID, expiresAt)

	a.audit.logEvent(AuditLoginSuccess, r, accountID)
	writeJSON(w, http.StatusOK, LoginResponse{SessionID: sessionID})
}

// Me handles GET /auth/me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, a.accountResponse(account))
}

// Logout handles POST /auth/logout. Logout never fails: an absent or
// already-expired session still yields 200 and a cleared cookie.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := a.sessionIDFromRequest(r)
	a.svc.Logout(sessionID, a.extractClientIP(r))
	a.clearSessionCookie(w, r)
	a.audit.log(AuditLogout, r)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// RequestPasswordReset handles POST /auth/reset/request. The response is
// identical whether or not the address names an account.
func (a *API) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResetRequestRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	// Reset requests share the per-IP limiter: each one may cost a token
	// generation and a dispatch, and unthrottled requests enumerate mailboxes.
	clientIP := a.extractClientIP(r)
	if blocked, retryAfter := a.ipLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditResetRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}
	a.ipLimiter.recordFailure(clientIP)

	if err := a.svc.RequestPasswordReset(req.Email); err != nil {
		writeInternalError(w, "password reset request failed", err)
		return
	}

	a.audit.logEvent(AuditResetRequested, r, accountLookupID(req.Email))
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// CompletePasswordReset handles POST /auth/reset/complete.
func (a *API) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResetCompleteRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	if err := a.svc.CompletePasswordReset(req.Token, req.Password); err != nil {
		a.audit.logFailure(AuditResetFailure, r, err.Error())
		mapError(w, err)
		return
	}

	a.audit.log(AuditResetCompleted, r)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (a *API) accountResponse(account *auth.Account) AccountResponse {
	resp := AccountResponse{
		ID:         account.ID,
		Email:      account.Email,
		Name:       account.Name,
		Role:       string(a.svc.EffectiveRole(account)),
		Plan:       account.Plan,
		Subscriber: a.svc.IsSubscriber(account),
		CreatedAt:  account.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !account.LastLoginAt.IsZero() {
		resp.LastLoginAt = account.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}
