package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
)

const (
	// DefaultResetTokenTTL keeps reset links single-purpose and short-lived.
	DefaultResetTokenTTL = 30 * time.Minute

	resetTokenBytes = 32
)

// ResetDispatcher delivers a password-reset token out-of-band. The dispatch
// mechanism is an external collaborator; implementations must not leak
// whether an email maps to an account through their error behavior.
type ResetDispatcher interface {
	DispatchReset(email, token string, expiresAt time.Time) error
}

// LogDispatcher writes the reset link to the structured log. It is the
// default dispatcher for deployments without an outbound mail path.
type LogDispatcher struct {
	Logger  *slog.Logger
	BaseURL string
}

// DispatchReset logs the reset link and its expiry.
func (d *LogDispatcher) DispatchReset(email, token string, expiresAt time.Time) error {
	d.Logger.Info("password reset requested",
		"event", "password_reset_request",
		"email", email,
		"url", fmt.Sprintf("%s/reset-password?token=%s", d.BaseURL, token),
		"expires_at", expiresAt.UTC().Format(time.RFC3339),
	)
	return nil
}

// newResetSecret seals the reset-token HMAC key in a memguard enclave so the
// key material is encrypted at rest in memory. The source slice is wiped.
func newResetSecret(secret []byte) *memguard.Enclave {
	return memguard.NewEnclave(secret)
}

// resetTokenHash computes the keyed hash under which a reset token is
// persisted. Only the hash is ever stored; possession of the store alone is
// not enough to forge a usable token.
func resetTokenHash(secret *memguard.Enclave, raw string) (string, error) {
	buf, err := secret.Open()
	if err != nil {
		return "", fmt.Errorf("opening reset secret: %w", err)
	}
	defer buf.Destroy()
	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
