// Package auth provides server-side session management for account
// authentication: credential hashing, session issuance and rolling renewal,
// append-only login/logout audit records, and the composed service boundary.
package auth

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Role is the access level stored on an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// SubscriptionStatus tracks the billing state of an account.
type SubscriptionStatus string

const (
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Account is a registered user. Accounts are created on registration and
// never deleted in normal operation; deactivation flips Active instead.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`

	Role               Role               `json:"role"`
	Plan               string             `json:"plan"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionUntil  *time.Time         `json:"subscription_until,omitempty"`

	// Reset tokens are stored only as a keyed hash, never in the clear.
	ResetTokenHash   string    `json:"reset_token_hash,omitempty"`
	ResetTokenExpiry time.Time `json:"reset_token_expiry,omitzero"`

	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at,omitzero"`
}

// IsSubscriber reports whether the account has an active subscription at the
// given instant. An active status with no expiry is treated as indefinite
// (manually managed), not an error.
func (a *Account) IsSubscriber(now time.Time) bool {
	if a == nil || a.SubscriptionStatus != SubscriptionActive {
		return false
	}
	if a.SubscriptionUntil == nil {
		return true
	}
	return !now.After(*a.SubscriptionUntil)
}

// Session is a server-side session row. A session is valid while the current
// time is before ExpiresAt; expiry moves forward on use, subject to the
// renewal throttle.
type Session struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IP         string    `json:"ip,omitempty"`
	UAHash     string    `json:"ua_hash,omitempty"`
}

// LoginRecord is an append-only audit row written for every login attempt,
// successful or not. Email may name an account that does not exist.
type LoginRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Success   bool      `json:"success"`
	IP        string    `json:"ip,omitempty"`
	UAHash    string    `json:"ua_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogoutRecord is an append-only audit row written for every logout call,
// even when the session could not be resolved.
type LogoutRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var emailFolder = cases.Fold()

// NormalizeEmail canonicalizes an email address for storage and lookup:
// surrounding whitespace is trimmed and the address is Unicode case-folded,
// so `A@B.com` and `a@b.com` identify the same account.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}
