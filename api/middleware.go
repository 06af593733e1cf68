package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/ironlatch/auth"
)

type contextKey int

const (
	accountKey contextKey = iota
	sessionIDKey
)

const (
	defaultSessionCookieName = "ironlatch_sid"
	sessionHeaderName        = "x-session-id"
)

// sessionIDFromRequest resolves the session ID for a request. The explicit
// header wins over cookies so API clients can override a stale browser
// cookie; the __Host- prefixed cookie wins over the plain one.
func (a *API) sessionIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionHeaderName)); id != "" {
		return id
	}
	if cookie, err := r.Cookie("__Host-" + a.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if cookie, err := r.Cookie(a.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// AuthMiddleware authenticates the request's session and stores the resolved
// account on the request context. Touching the session (rolling renewal) is
// handled inside the service.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := a.sessionIDFromRequest(r)
		account, err := a.svc.Authenticate(sessionID)
		if err != nil {
			mapError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountKey, account)
		ctx = context.WithValue(ctx, sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a route to accounts whose effective role is admin or
// superadmin. Must run after AuthMiddleware.
func (a *API) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		if account == nil {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		switch a.svc.EffectiveRole(account) {
		case auth.RoleAdmin, auth.RoleSuperadmin:
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusForbidden, "admin access required")
		}
	})
}

func accountFromContext(ctx context.Context) *auth.Account {
	account, _ := ctx.Value(accountKey).(*auth.Account)
	return account
}

func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, expiresAt time.Time) {
	secure := requestIsSecure(r)
	name := a.cookieName
	if secure {
		// The __Host- prefix locks the cookie to this host over HTTPS.
		name = "__Host-" + a.cookieName
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	for _, name := range []string{a.cookieName, "__Host-" + a.cookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
