package auth

import "time"

// Permission is a closed set of atomic capability grants.
type Permission string

const (
	PermissionRead        Permission = "read"
	PermissionWrite       Permission = "write"
	PermissionUpdate      Permission = "update"
	PermissionDelete      Permission = "delete"
	PermissionManageUsers Permission = "manage_users"
	PermissionViewLogs    Permission = "view_logs"
)

// AllPermissions lists every known permission, in declaration order.
var AllPermissions = []Permission{
	PermissionRead,
	PermissionWrite,
	PermissionUpdate,
	PermissionDelete,
	PermissionManageUsers,
	PermissionViewLogs,
}

// Valid reports whether p belongs to the closed permission set.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// ResetToken is the pending password-reset state carried on a user record.
// A token is single-use: consuming it clears both fields atomically.
type ResetToken struct {
	Value     string
	ExpiresAt time.Time
}

// Live reports whether the token can still be consumed at the given instant.
func (t ResetToken) Live(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// User is a stored account record. PasswordHash never holds the plaintext.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	RoleIDs      []string   `json:"role_ids"`
	Reset        ResetToken `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role groups permissions under a unique name.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RoleClaim is the per-role slice of a token payload: the role reference plus
// the permission snapshot taken at issue time. The guard treats the snapshot
// as informational only and re-resolves permissions from the store.
type RoleClaim struct {
	RoleID      string       `json:"rid"`
	Permissions []Permission `json:"perms,omitempty"`
}

// Principal is an authenticated identity with its currently resolved roles.
type Principal struct {
	UserID string
	Roles  []Role
}

// HasAnyPermission reports whether at least one resolved role carries at least
// one of the required permissions. An empty requirement always passes.
func (p Principal) HasAnyPermission(required ...Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, role := range p.Roles {
		for _, perm := range role.Permissions {
			for _, want := range required {
				if perm == want {
					return true
				}
			}
		}
	}
	return false
}

// RoleIDs returns the identifiers of the resolved roles.
func (p Principal) RoleIDs() []string {
	out := make([]string, 0, len(p.Roles))
	for _, role := range p.Roles {
		out = append(out, role.ID)
	}
	return out
}
