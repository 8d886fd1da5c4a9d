package auth

import (
	"context"
	"errors"
	"time"

	"aegisid.org/internal/ids"
)

// Builtin role names seeded at startup.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// BuiltinRoles are the default permission bundles. IDs are assigned by the
// store on first creation.
var BuiltinRoles = []Role{
	{Name: RoleAdmin, Permissions: AllPermissions},
	{Name: RoleEditor, Permissions: []Permission{PermissionRead, PermissionWrite, PermissionUpdate}},
	{Name: RoleViewer, Permissions: []Permission{PermissionRead}},
}

// EnsureBuiltinRoles creates any missing builtin role. Concurrent callers may
// race on creation; the duplicate loser is treated as success.
func EnsureBuiltinRoles(ctx context.Context, store Store) error {
	for _, builtin := range BuiltinRoles {
		_, err := store.FindRoleByName(ctx, builtin.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoleNotFound) {
			return err
		}
		now := time.Now().UTC()
		role := Role{
			ID:          ids.New(),
			Name:        builtin.Name,
			Permissions: append([]Permission(nil), builtin.Permissions...),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := store.CreateRole(ctx, &role); err != nil && !errors.Is(err, ErrDuplicateCredential) {
			return err
		}
	}
	return nil
}
