package auth

import (
	"context"
	"errors"
	"strings"
)

const bearerScheme = "Bearer "

// TokenVerifier is the slice of TokenService the guard depends on.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// RoleResolver is the slice of Store the guard depends on.
type RoleResolver interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindRolesByIDs(ctx context.Context, ids []string) ([]Role, error)
}

// Guard performs the two-stage request check: authenticate the bearer token,
// then enforce a required-permission set. Permissions are always re-resolved
// from the store, so a role edit takes effect on the next request rather than
// at token expiry.
type Guard struct {
	tokens TokenVerifier
	roles  RoleResolver
}

// NewGuard constructs a Guard.
func NewGuard(tokens TokenVerifier, roles RoleResolver) *Guard {
	return &Guard{tokens: tokens, roles: roles}
}

// Authenticate resolves an Authorization header value to a principal. A token
// carrying role claims resolves those role IDs; an identity-only token (e.g.
// one minted by refresh) resolves the role IDs on the live user record, so
// both shapes carry the same access.
// Failures: ErrUnauthenticated (no token), ErrInvalidToken (any verification
// failure), ErrForbidden (token valid but no live role remains).
func (g *Guard) Authenticate(ctx context.Context, authorization string) (Principal, error) {
	token, err := ExtractBearerToken(authorization)
	if err != nil {
		return Principal{}, err
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}

	roleIDs := make([]string, 0, len(claims.RoleClaims))
	for _, rc := range claims.RoleClaims {
		roleIDs = append(roleIDs, rc.RoleID)
	}
	if len(roleIDs) == 0 {
		user, err := g.roles.FindByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return Principal{}, ErrForbidden
			}
			return Principal{}, err
		}
		roleIDs = user.RoleIDs
	}

	roles, err := g.roles.FindRolesByIDs(ctx, roleIDs)
	if err != nil {
		return Principal{}, err
	}
	if len(roles) == 0 {
		return Principal{}, ErrForbidden
	}

	return Principal{UserID: claims.Subject, Roles: roles}, nil
}

// Check runs both stages: authenticate, then require that the principal holds
// at least one of the required permissions through at least one role.
func (g *Guard) Check(ctx context.Context, authorization string, required ...Permission) (Principal, error) {
	principal, err := g.Authenticate(ctx, authorization)
	if err != nil {
		return Principal{}, err
	}
	if !principal.HasAnyPermission(required...) {
		return Principal{}, ErrForbidden
	}
	return principal, nil
}

// ExtractBearerToken pulls the token out of an Authorization header value.
// A missing or non-bearer header reports ErrUnauthenticated.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrUnauthenticated
	}
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", ErrUnauthenticated
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
