package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGStore implements Store over PostgreSQL via database/sql with the pgx
// stdlib driver. Uniqueness of email, username, and role name is enforced by
// the schema; unique violations surface as ErrDuplicateCredential.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$5)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt,
	); err != nil {
		return mapUniqueViolation(err)
	}
	for _, roleID := range u.RoleIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
			u.ID, roleID,
		); err != nil {
			return mapForeignKeyViolation(err)
		}
	}
	return tx.Commit()
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findUser(ctx, `where id=$1`, id)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, `where email=$1`, email)
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, `where username=$1`, username)
}

func (s *PGStore) findUser(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, email, password_hash, reset_token, reset_expires, created_at, updated_at
		 from users `+where, arg)

	var (
		u            User
		resetToken   sql.NullString
		resetExpires sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&resetToken, &resetExpires, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if resetToken.Valid {
		u.Reset = ResetToken{Value: resetToken.String, ExpiresAt: resetExpires.Time}
	}

	rows, err := s.db.QueryContext(ctx,
		`select role_id from user_roles where user_id=$1 order by created_at`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		u.RoleIDs = append(u.RoleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, hash)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

func (s *PGStore) SetResetToken(ctx context.Context, userID string, reset ResetToken) error {
	res, err := s.db.ExecContext(ctx,
		`update users set reset_token=$2, reset_expires=$3, updated_at=now() where id=$1`,
		userID, reset.Value, reset.ExpiresAt)
	if err != nil {
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

func (s *PGStore) ConsumeResetToken(ctx context.Context, tokenValue, newHash string, now time.Time) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`update users
		 set password_hash=$2, reset_token=null, reset_expires=null, updated_at=now()
		 where reset_token=$1 and reset_expires > $3
		 returning id, username, email, created_at, updated_at`,
		tokenValue, newHash, now)

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}
	u.PasswordHash = newHash
	return &u, nil
}

func (s *PGStore) CreateRole(ctx context.Context, r *Role) error {
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, permissions, created_at, updated_at) values($1,$2,$3,$4,$4)`,
		r.ID, r.Name, perms, r.CreatedAt,
	); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *PGStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, permissions, created_at, updated_at from roles where name=$1`, name)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *PGStore) FindRolesByIDs(ctx context.Context, ids []string) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, name, permissions, created_at, updated_at from roles where id = any($1) order by created_at`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		role  Role
		perms []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perms, &role.Permissions); err != nil {
		return nil, err
	}
	return &role, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicateCredential
	}
	return err
}

// mapForeignKeyViolation surfaces a dangling role reference on user_roles as
// ErrRoleNotFound, matching the memory store's check.
func mapForeignKeyViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return ErrRoleNotFound
	}
	return err
}
