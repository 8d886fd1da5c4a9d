package auth

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// passthroughConverter admits values the pgx driver handles natively, such as
// the []string bound to "= any($1)" queries.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newPGFixture(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGCreateUser(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WithArgs("u1", "alice", "alice@example.com", "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CreateUser(context.Background(), &User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		RoleIDs:      []string{"r1"},
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCreateUserDuplicate(t *testing.T) {
	store, mock := newPGFixture(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	err := store.CreateUser(context.Background(), &User{ID: "u1", Email: "a@b.com"})
	if !errors.Is(err, ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCreateUserUnknownRole(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WithArgs("u1", "alice", "alice@example.com", "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("u1", "no-such-role").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
	mock.ExpectRollback()

	err := store.CreateUser(context.Background(), &User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		RoleIDs:      []string{"no-such-role"},
		CreatedAt:    now,
	})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindByEmail(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, username, email, password_hash, reset_token, reset_expires.*from users").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "reset_token", "reset_expires", "created_at", "updated_at",
		}).AddRow("u1", "alice", "alice@example.com", "hash", nil, nil, now, now))
	mock.ExpectQuery("select role_id from user_roles").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow("r1").AddRow("r2"))

	user, err := store.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || len(user.RoleIDs) != 2 {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Reset.Value != "" {
		t.Fatalf("expected no pending reset, got %+v", user.Reset)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindByIDNotFound(t *testing.T) {
	store, mock := newPGFixture(t)

	mock.ExpectQuery("from users").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "reset_token", "reset_expires", "created_at", "updated_at",
		}))

	if _, err := store.FindByID(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPGUpdatePasswordHashMissingUser(t *testing.T) {
	store, mock := newPGFixture(t)

	mock.ExpectExec("update users set password_hash").
		WithArgs("missing", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdatePasswordHash(context.Background(), "missing", "hash"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPGConsumeResetToken(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("update users").
		WithArgs("reset-token", "new-hash", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at", "updated_at"}).
			AddRow("u1", "alice", "alice@example.com", now, now))

	user, err := store.ConsumeResetToken(context.Background(), "reset-token", "new-hash", now)
	if err != nil {
		t.Fatalf("ConsumeResetToken: %v", err)
	}
	if user.PasswordHash != "new-hash" {
		t.Fatalf("hash not carried over: %+v", user)
	}
}

func TestPGConsumeResetTokenMiss(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectQuery("update users").
		WithArgs("stale", "new-hash", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at", "updated_at"}))

	if _, err := store.ConsumeResetToken(context.Background(), "stale", "new-hash", now); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken, got %v", err)
	}
}

func TestPGRoles(t *testing.T) {
	store, mock := newPGFixture(t)
	now := time.Now().UTC()

	mock.ExpectExec("insert into roles").
		WithArgs("r1", "reader", []byte(`["read"]`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.CreateRole(context.Background(), &Role{
		ID: "r1", Name: "reader", Permissions: []Permission{PermissionRead}, CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	mock.ExpectQuery("select id, name, permissions.*from roles where name").
		WithArgs("reader").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "permissions", "created_at", "updated_at"}).
			AddRow("r1", "reader", []byte(`["read"]`), now, now))
	role, err := store.FindRoleByName(context.Background(), "reader")
	if err != nil {
		t.Fatalf("FindRoleByName: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != PermissionRead {
		t.Fatalf("permissions not decoded: %+v", role)
	}

	mock.ExpectQuery("select id, name, permissions.*from roles where id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "permissions", "created_at", "updated_at"}).
			AddRow("r1", "reader", []byte(`["read"]`), now, now))
	roles, err := store.FindRolesByIDs(context.Background(), []string{"r1"})
	if err != nil {
		t.Fatalf("FindRolesByIDs: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("expected one role, got %d", len(roles))
	}

	mock.ExpectQuery("from roles where name").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "permissions", "created_at", "updated_at"}))
	if _, err := store.FindRoleByName(context.Background(), "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
