// Package config loads the process configuration snapshot. Configuration is
// read once at startup and injected; business logic never consults the
// environment directly.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the service consumes, with production defaults.
type Config struct {
	Port    int
	DataDir string

	IdleWindow        time.Duration
	RenewalThrottle   time.Duration
	MinPasswordLength int
	ResetTokenTTL     time.Duration
	// ResetSecret is hex-encoded HMAC key material for reset tokens. Empty
	// means an ephemeral per-process key (development only).
	ResetSecret []byte

	AdminEmails  []string
	DefaultRole  string
	DefaultPlan  string
	ResetBaseURL string

	// CookieName is the session cookie; the __Host- prefixed variant is
	// also accepted on requests.
	CookieName string

	// SweepInterval enables the optional expired-session hygiene sweep when
	// positive.
	SweepInterval time.Duration

	TLSCert string
	TLSKey  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present (it never overrides real
// environment variables).
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvInt("IRONLATCH_PORT", 8080),
		DataDir:           getEnv("IRONLATCH_DATA_DIR", "./data"),
		IdleWindow:        getEnvDuration("IRONLATCH_SESSION_IDLE_WINDOW", 2*time.Hour),
		RenewalThrottle:   getEnvDuration("IRONLATCH_SESSION_RENEWAL_THROTTLE", 10*time.Minute),
		MinPasswordLength: getEnvInt("IRONLATCH_MIN_PASSWORD_LENGTH", 8),
		ResetTokenTTL:     getEnvDuration("IRONLATCH_RESET_TOKEN_TTL", 30*time.Minute),
		AdminEmails:       splitList(os.Getenv("IRONLATCH_ADMIN_EMAILS")),
		DefaultRole:       getEnv("IRONLATCH_DEFAULT_ROLE", "user"),
		DefaultPlan:       getEnv("IRONLATCH_DEFAULT_PLAN", "free"),
		ResetBaseURL:      getEnv("IRONLATCH_RESET_BASE_URL", "http://localhost:3000"),
		CookieName:        getEnv("IRONLATCH_SESSION_COOKIE", "ironlatch_sid"),
		SweepInterval:     getEnvDuration("IRONLATCH_SWEEP_INTERVAL", 0),
		TLSCert:           os.Getenv("IRONLATCH_TLS_CERT"),
		TLSKey:            os.Getenv("IRONLATCH_TLS_KEY"),
	}

	if raw := os.Getenv("IRONLATCH_RESET_SECRET"); raw != "" {
		secret, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("IRONLATCH_RESET_SECRET must be hex: %w", err)
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("IRONLATCH_RESET_SECRET must be at least 32 bytes, got %d", len(secret))
		}
		cfg.ResetSecret = secret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries, so values survive careless editing.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
