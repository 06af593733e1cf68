package auth

import "errors"

// Authentication failure kinds. The HTTP layer collapses all of these into
// one undifferentiated "not authenticated" response so that callers cannot
// enumerate accounts or probe session state; the specific kind is kept for
// internal logging.
var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession indicates no session row exists for the identifier.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired indicates the session row existed but had passed its
	// expiry; the row has been deleted as a side effect of detection.
	ErrSessionExpired = errors.New("session expired")
	// ErrInactiveAccount indicates the session resolved to a deactivated
	// account; the session has been deleted as a side effect.
	ErrInactiveAccount = errors.New("inactive account")
	// ErrUnauthorized indicates a request carried no usable session identifier.
	ErrUnauthorized = errors.New("unauthorized")
)

// Validation failure kinds. Always recoverable by the caller correcting
// input; never logged as security events on their own.
var (
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong rejects oversized input outright rather than
	// silently truncating it, which would make distinct credentials collide.
	ErrPasswordTooLong   = errors.New("password too long")
	ErrEmailInvalid      = errors.New("invalid email address")
	ErrNameRequired      = errors.New("name is required")
	ErrResetTokenInvalid = errors.New("reset token invalid")
	ErrResetTokenExpired = errors.New("reset token expired")
)

// ErrEmailTaken is the conflict kind: the normalized email is already
// registered. The store enforces this atomically with the insert.
var ErrEmailTaken = errors.New("email already registered")

// Storage sentinels returned by Store implementations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSessionExists indicates a session identifier collision on insert.
	ErrSessionExists = errors.New("session id already exists")
)

// IsAuthError reports whether err is one of the authentication failure
// kinds, all of which surface to clients as a generic 401.
func IsAuthError(err error) bool {
	for _, kind := range []error{
		ErrInvalidCredentials,
		ErrInvalidSession,
		ErrSessionExpired,
		ErrInactiveAccount,
		ErrUnauthorized,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is an input-policy violation.
func IsValidationError(err error) bool {
	for _, kind := range []error{
		ErrPasswordRequired,
		ErrPasswordTooShort,
		ErrPasswordTooLong,
		ErrEmailInvalid,
		ErrNameRequired,
		ErrResetTokenInvalid,
		ErrResetTokenExpired,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
