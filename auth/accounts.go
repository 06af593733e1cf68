package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMinPasswordLength is the registration password policy floor.
const DefaultMinPasswordLength = 8

// AccountRegistry creates and looks up accounts.
type AccountRegistry struct {
	store       Store
	creds       *CredentialManager
	minPassword int
	defaultRole Role
	defaultPlan string
	now         func() time.Time
}

// RegistryOption configures an AccountRegistry.
type RegistryOption func(*AccountRegistry)

// WithMinPasswordLength overrides the minimum accepted password length.
func WithMinPasswordLength(n int) RegistryOption {
	return func(r *AccountRegistry) {
		if n > 0 {
			r.minPassword = n
		}
	}
}

// WithDefaults sets the role and plan assigned to new accounts.
func WithDefaults(role Role, plan string) RegistryOption {
	return func(r *AccountRegistry) {
		if role != "" {
			r.defaultRole = role
		}
		if plan != "" {
			r.defaultPlan = plan
		}
	}
}

// WithRegistryClock overrides the time source, for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *AccountRegistry) {
		r.now = now
	}
}

// NewAccountRegistry creates a registry over the given store and credential
// manager. New accounts default to role "user" on the free plan with an
// inactive subscription.
func NewAccountRegistry(store Store, creds *CredentialManager, opts ...RegistryOption) *AccountRegistry {
	r := &AccountRegistry{
		store:       store,
		creds:       creds,
		minPassword: DefaultMinPasswordLength,
		defaultRole: RoleUser,
		defaultPlan: "free",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a new account. It never issues a session: registration
// and session issuance are deliberately decoupled.
//
// The pre-insert lookup is only a shortcut rejection; the store-level
// uniqueness constraint is authoritative against concurrent registrations
// with the same email.
func (r *AccountRegistry) Register(email, password, name string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailInvalid
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	if len(password) < r.minPassword {
		return nil, ErrPasswordTooShort
	}

	if _, err := r.store.AccountByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := r.creds.Hash(password)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:                 uuid.NewString(),
		Email:              email,
		PasswordHash:       hash,
		Name:               strings.TrimSpace(name),
		Active:             true,
		Role:               r.defaultRole,
		Plan:               r.defaultPlan,
		SubscriptionStatus: SubscriptionInactive,
		CreatedAt:          r.now().UTC(),
	}
	if err := r.store.CreateAccount(a); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("persisting account: %w", err)
	}
	return a, nil
}

// ByEmail looks up an account by any casing of its email. Returns
// ErrNotFound when absent.
func (r *AccountRegistry) ByEmail(email string) (*Account, error) {
	return r.store.AccountByEmail(NormalizeEmail(email))
}

// ByID looks up an account by identifier. Returns ErrNotFound when absent.
func (r *AccountRegistry) ByID(id string) (*Account, error) {
	return r.store.AccountByID(id)
}
