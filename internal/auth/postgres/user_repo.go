// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
)

const userColumns = `id, full_name, email, phone, password_hash, role,
		       failed_attempts, locked_until, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. A taken email surfaces as auth.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, full_name, email, phone, password_hash, role,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID.String(),
		user.FullName,
		user.Email,
		user.Phone,
		user.PasswordHash,
		string(user.Role),
		user.FailedAttempts,
		user.LockedUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// UpdatePassword replaces the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateRole replaces the role for a user.
func (r *UserRepository) UpdateRole(ctx context.Context, id ulid.ULID, role auth.Role) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET role = $2, updated_at = now() WHERE id = $1
	`, id.String(), string(role))
	if err != nil {
		return oops.Code("USER_UPDATE_ROLE_FAILED").
			With("operation", "update role").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginFailure increments the failure counter in one statement and
// sets locked_until once the counter reaches threshold.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String(), threshold, lockUntil).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_RECORD_FAILURE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	return count, nil
}

// ResetLoginFailures clears the failure counter and lockout.
func (r *UserRepository) ResetLoginFailures(ctx context.Context, id ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("USER_RESET_FAILURES_FAILED").
			With("operation", "reset login failures").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		idStr string
		role  string
	)
	err := row.Scan(
		&idStr,
		&u.FullName,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&role,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}
