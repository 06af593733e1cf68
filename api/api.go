package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironlatch/auth"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc            *auth.Service
	cookieName     string
	trustedProxies []netip.Prefix

	rateLimiter   *loginRateLimiter
	ipLimiter     *ipRateLimiter
	globalLimiter *globalRateLimiter

	audit *auditLogger

	sweepOnce sync.Once
	sweepStop chan struct{}
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) Option {
	return func(a *API) {
		if name != "" {
			a.cookieName = name
		}
	}
}

// WithTrustedProxies sets the CIDR ranges whose proxy headers are honored
// when resolving client IPs. Empty means headers are never trusted.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithAlertFunc installs a callback for anomaly alerts (login failure spikes).
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		if a.audit == nil {
			a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
		}
		a.audit.metrics = newMetricsCollector(fn)
	}
}

// New creates a new API instance.
func New(svc *auth.Service, opts ...Option) *API {
	a := &API{
		svc:           svc,
		cookieName:    defaultSessionCookieName,
		rateLimiter:   newLoginRateLimiter(),
		ipLimiter:     newIPRateLimiter(),
		globalLimiter: newGlobalRateLimiter(),
		sweepStop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// sweepLimiters drops rate-limit records whose last failure is older than
// the attempt expiry, bounding limiter memory against wide sprays of
// distinct emails and IPs that are never probed again.
func (a *API) sweepLimiters() {
	a.rateLimiter.sweep()
	a.ipLimiter.sweep()
}

// StartLimiterSweeper begins a periodic sweep of the rate-limiter state.
// Call StopLimiterSweeper on shutdown.
func (a *API) StartLimiterSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.sweepStop:
				return
			case <-ticker.C:
				a.sweepLimiters()
			}
		}
	}()
}

// StopLimiterSweeper stops the limiter sweep, if one was started.
func (a *API) StopLimiterSweeper() {
	a.sweepOnce.Do(func() { close(a.sweepStop) })
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Post("/auth/reset/request", a.RequestPasswordReset)
	r.Post("/auth/reset/complete", a.CompletePasswordReset)
	r.With(a.AuthMiddleware).Get("/auth/me", a.Me)

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.AuthMiddleware, a.RequireAdmin)
		r.Get("/history/logins", a.LoginHistory)
		r.Get("/history/logouts", a.LogoutHistory)
	})

	return r
}
