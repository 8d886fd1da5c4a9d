package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs local development
// when no database DSN is configured and the package tests. Semantics match
// the Postgres store, including last-writer-wins on concurrent password
// updates.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*User
	roles map[string]*Role
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		roles: make(map[string]*Role),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return ErrDuplicateCredential
		}
	}
	for _, roleID := range u.RoleIDs {
		if _, ok := m.roles[roleID]; !ok {
			return ErrRoleNotFound
		}
	}
	cp := cloneUser(u)
	m.users[u.ID] = cp
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetResetToken(ctx context.Context, userID string, reset ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Reset = reset
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ConsumeResetToken(ctx context.Context, tokenValue, newHash string, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Reset.Value == tokenValue && u.Reset.Live(now) {
			u.PasswordHash = newHash
			u.Reset = ResetToken{}
			u.UpdatedAt = now
			return cloneUser(u), nil
		}
	}
	return nil, ErrInvalidResetToken
}

func (m *MemoryStore) CreateRole(ctx context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == r.Name {
			return ErrDuplicateCredential
		}
	}
	m.roles[r.ID] = cloneRole(r)
	return nil
}

func (m *MemoryStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, ErrRoleNotFound
}

func (m *MemoryStore) FindRolesByIDs(ctx context.Context, ids []string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			out = append(out, *cloneRole(r))
		}
	}
	return out, nil
}

// DeleteRole removes a role; users keep dangling role IDs, which the guard
// treats as revoked.
func (m *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrRoleNotFound
	}
	delete(m.roles, id)
	return nil
}

// DeleteUser removes a user record. Outstanding tokens for the user fail
// verification on the next request.
func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &cp
}

func cloneRole(r *Role) *Role {
	cp := *r
	cp.Permissions = append([]Permission(nil), r.Permissions...)
	return &cp
}
