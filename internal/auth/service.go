package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"aegisid.org/internal/ids"
	"aegisid.org/internal/obs"
)

const (
	defaultResetTTL = time.Hour

	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 6
)

// Service orchestrates registration, login, token verification, and the
// password lifecycle. Every call is a one-shot computation over injected
// collaborators; the service itself holds no mutable state.
type Service struct {
	store    Store
	hasher   Hasher
	tokens   *TokenService
	notifier Notifier
	resetTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithResetTTL overrides the reset-token validity window.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service. A nil notifier disables outbound
// mail without affecting any primary operation.
func NewService(store Store, hasher Hasher, tokens *TokenService, notifier Notifier, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("auth: store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("auth: token service is required")
	}
	s := &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		resetTTL: defaultResetTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput carries the candidate account fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	RoleIDs  []string
}

// Register creates an account with a hashed password and sends a best-effort
// welcome message. Duplicate email or username reports ErrDuplicateCredential.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", ErrValidation, minUsernameLen, maxUsernameLen)
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleIDs:      dedupeIDs(in.RoleIDs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.notify(ctx, user.Email, "Welcome to Aegis",
		fmt.Sprintf("Hello %s,\n\nThank you for registering with us!", user.Username))

	return user, nil
}

// Login verifies the credentials and issues a bearer token carrying a
// snapshot of the user's roles at login time. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, time.Time, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		obs.RecordLogin("failure")
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		obs.RecordLogin("failure")
		if isNotFound(err) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		obs.RecordLogin("failure")
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	roles, err := s.store.FindRolesByIDs(ctx, user.RoleIDs)
	if err != nil {
		obs.RecordLogin("failure")
		return nil, "", time.Time{}, err
	}
	roleClaims := make([]RoleClaim, 0, len(roles))
	for _, role := range roles {
		roleClaims = append(roleClaims, RoleClaim{RoleID: role.ID, Permissions: role.Permissions})
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, roleClaims, 0)
	if err != nil {
		obs.RecordLogin("failure")
		return nil, "", time.Time{}, err
	}
	obs.RecordLogin("success")
	return user, token, expiresAt, nil
}

// VerifyToken validates a bearer token and re-fetches the account so tokens
// for deleted users stop working before they expire. Any token-level failure
// is reported as ErrInvalidToken.
func (s *Service) VerifyToken(ctx context.Context, token string) (*User, []RoleClaim, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		obs.RecordTokenVerification("failure")
		return nil, nil, err
	}

	user, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		obs.RecordTokenVerification("failure")
		if isNotFound(err) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	obs.RecordTokenVerification("success")
	return user, claims.RoleClaims, nil
}

// RefreshToken exchanges a token for a fresh one with a full TTL.
func (s *Service) RefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	return s.tokens.Refresh(token)
}

// ChangePassword re-hashes and persists a new password after verifying the
// old one. Concurrent calls on the same user are last-writer-wins.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return ErrInvalidOldPassword
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, user.ID, hash)
}

// ForgotPassword stores a fresh single-use reset token with a bounded
// validity window, replacing any pending one, and mails it to the account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return ErrUserNotFound
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}

	value, err := newResetValue()
	if err != nil {
		return err
	}
	reset := ResetToken{Value: value, ExpiresAt: s.now().UTC().Add(s.resetTTL)}
	if err := s.store.SetResetToken(ctx, user.ID, reset); err != nil {
		return err
	}

	s.notify(ctx, user.Email, "Password Reset",
		fmt.Sprintf("To reset your password, use this token: %s\n\nThe token expires in %s.", value, s.resetTTL))

	return nil
}

// ResetPassword consumes a pending reset token exactly once. The stored token
// must match byte-for-byte and still be within its validity window.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		obs.RecordPasswordReset("failure")
		return ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.store.ConsumeResetToken(ctx, tokenValue, hash, s.now().UTC()); err != nil {
		obs.RecordPasswordReset("failure")
		return err
	}
	obs.RecordPasswordReset("success")
	return nil
}

// notify delivers a message without ever failing the caller. Failures are
// logged and counted.
func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		obs.RecordNotifyFailure()
		obs.LogEvent("warn", "notification dropped", map[string]any{
			"to":      to,
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

func newResetValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	return nil
}

func dedupeIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRoleNotFound)
}
