package auth

import "errors"

// Failure taxonomy surfaced by the auth subsystem. The request layer maps each
// kind to a stable status category; everything else is reported generically.
var (
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrInvalidOldPassword  = errors.New("auth: invalid old password")
	ErrInvalidResetToken   = errors.New("auth: invalid or expired reset token")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrUserNotFound        = errors.New("auth: user not found")
	ErrRoleNotFound        = errors.New("auth: role not found")
	ErrDuplicateCredential = errors.New("auth: email or username already registered")
	ErrUnauthenticated     = errors.New("auth: unauthenticated")
	ErrForbidden           = errors.New("auth: forbidden")
)

// ErrValidation marks client input that failed a field-level check. Concrete
// messages wrap it so the request layer can pass them through as 400s.
var ErrValidation = errors.New("auth: validation failed")

// Token verification failure reasons. All three satisfy errors.Is against
// ErrInvalidToken so callers can collapse them to one user-facing kind.
var (
	ErrTokenMalformed = newTokenError("auth: token malformed")
	ErrTokenSignature = newTokenError("auth: token signature invalid")
	ErrTokenExpired   = newTokenError("auth: token expired")
)

type tokenError struct{ msg string }

func newTokenError(msg string) error { return &tokenError{msg: msg} }

func (e *tokenError) Error() string { return e.msg }

func (e *tokenError) Is(target error) bool { return target == ErrInvalidToken }
