package auth

import (
	"context"
	"time"
)

// Store abstracts credential persistence. Implementations must enforce
// email/username uniqueness at create time and report conflicts as
// ErrDuplicateCredential. Lookups that match nothing report ErrUserNotFound.
type Store interface {
	// CreateUser persists a new user record.
	CreateUser(ctx context.Context, u *User) error
	// FindByID loads a user by identifier.
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByEmail loads a user by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByUsername loads a user by exact username.
	FindByUsername(ctx context.Context, username string) (*User, error)
	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetResetToken stores a pending reset token, overwriting any prior one.
	SetResetToken(ctx context.Context, userID string, reset ResetToken) error
	// ConsumeResetToken atomically matches a live reset token, replaces the
	// password hash, and clears the token state. It reports
	// ErrInvalidResetToken when no user holds a matching unexpired token.
	ConsumeResetToken(ctx context.Context, tokenValue, newHash string, now time.Time) (*User, error)

	// CreateRole persists a new role; duplicate names report ErrDuplicateCredential.
	CreateRole(ctx context.Context, r *Role) error
	// FindRoleByName loads a role by its unique name, or ErrRoleNotFound.
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	// FindRolesByIDs resolves the given role IDs, silently skipping deleted ones.
	FindRolesByIDs(ctx context.Context, ids []string) ([]Role, error)
}

// Notifier delivers outbound messages. Delivery is best-effort: the auth
// service never fails a primary operation because a notification could not
// be sent.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
