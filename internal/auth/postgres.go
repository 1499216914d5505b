package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const adminUserColumns = `id, email, display_name, role, is_active, password_hash,
	created_at, created_by, updated_at, updated_by, last_login_at`

func (s *PGStore) CreateAdminUser(ctx context.Context, user AdminUser) error {
	_, err := s.db.ExecContext(ctx, `
		insert into admin_users(id, email, display_name, role, is_active, password_hash, created_at, created_by)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Email, user.DisplayName, string(user.Role), user.IsActive,
		user.PasswordHash, user.CreatedAt, user.CreatedBy)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) GetAdminUser(ctx context.Context, id string) (AdminUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+adminUserColumns+` from admin_users where id=$1`, id)
	return scanAdminUser(row)
}

func (s *PGStore) GetAdminUserByEmail(ctx context.Context, email string) (AdminUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+adminUserColumns+` from admin_users where lower(email)=lower($1)`, email)
	return scanAdminUser(row)
}

func (s *PGStore) UpdateAdminUser(ctx context.Context, user AdminUser) error {
	res, err := s.db.ExecContext(ctx, `
		update admin_users
		set email=$2, display_name=$3, role=$4, is_active=$5, password_hash=$6,
		    updated_at=$7, updated_by=$8, last_login_at=$9
		where id=$1
	`, user.ID, user.Email, user.DisplayName, string(user.Role), user.IsActive,
		user.PasswordHash, user.UpdatedAt, nullIfEmpty(user.UpdatedBy), user.LastLoginAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListAdminUsers(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+adminUserColumns+` from admin_users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdminUser
	for rows.Next() {
		u, err := scanAdminUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdminUser(row rowScanner) (AdminUser, error) {
	var (
		u           AdminUser
		role        string
		displayName sql.NullString
		updatedAt   sql.NullTime
		updatedBy   sql.NullString
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &displayName, &role, &u.IsActive, &u.PasswordHash,
		&u.CreatedAt, &u.CreatedBy, &updatedAt, &updatedBy, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return AdminUser{}, ErrNotFound
	}
	if err != nil {
		return AdminUser{}, err
	}
	u.Role = Role(role)
	if displayName.Valid {
		u.DisplayName = displayName.String
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}
	if updatedBy.Valid {
		u.UpdatedBy = updatedBy.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
