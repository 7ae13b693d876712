// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/pkg/errutil"
)

var userCols = []string{
	"id", "full_name", "email", "phone", "password_hash", "role",
	"failed_attempts", "locked_until", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func sampleUser(t *testing.T) *auth.User {
	t.Helper()
	u, err := auth.NewUser("Ada Lovelace", "ada@example.com", "03001234567", "hash", auth.RoleParticipant)
	require.NoError(t, err)
	return u
}

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		execErr   error
		wantErr   error
		wantCode  string
		wantNoErr bool
	}{
		{name: "inserts", wantNoErr: true},
		{name: "unique violation is duplicate", execErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, wantErr: auth.ErrDuplicate, wantCode: "USER_EMAIL_TAKEN"},
		{name: "other failure", execErr: errors.New("connection refused"), wantCode: "USER_CREATE_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			user := sampleUser(t)
			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs(user.ID.String(), user.FullName, user.Email, user.Phone, user.PasswordHash,
					string(user.Role), 0, user.LockedUntil, pgxmock.AnyArg(), pgxmock.AnyArg())
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err := NewUserRepository(mock).Create(context.Background(), user)
			if tt.wantNoErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("scans row", func(t *testing.T) {
		mock := newMock(t)
		id := ulid.Make()
		now := time.Now().UTC()
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("ada@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(
				id.String(), "Ada", "ada@example.com", "03001234567", "hash", "ORGANIZER",
				2, (*time.Time)(nil), now, now,
			))

		user, err := NewUserRepository(mock).GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, auth.RoleOrganizer, user.Role)
		assert.Equal(t, 2, user.FailedAttempts)
		assert.Nil(t, user.LockedUntil)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
			WithArgs("ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).GetByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		now := time.Now()
		mock.ExpectQuery(`FROM users WHERE LOWER\(email\)`).
			WithArgs("ada@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(
				"not-a-ulid", "Ada", "ada@example.com", "03001234567", "hash", "ORGANIZER",
				0, (*time.Time)(nil), now, now,
			))

		_, err := NewUserRepository(mock).GetByEmail(ctx, "ada@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("updates", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewUserRepository(mock).UpdatePassword(ctx, id, "newhash"))
	})

	t.Run("missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "newhash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := NewUserRepository(mock).UpdatePassword(ctx, id, "newhash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_UpdateRole(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()
	mock.ExpectExec(`UPDATE users SET role`).
		WithArgs(id.String(), "SUPER_ADMIN").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewUserRepository(mock).UpdateRole(context.Background(), id, auth.RoleSuperAdmin))
}

func TestUserRepository_RecordLoginFailure(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	until := time.Now().Add(15 * time.Minute)

	t.Run("returns new count", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SET failed_attempts = failed_attempts \+ 1`).
			WithArgs(id.String(), 7, until).
			WillReturnRows(pgxmock.NewRows([]string{"failed_attempts"}).AddRow(3))

		n, err := NewUserRepository(mock).RecordLoginFailure(ctx, id, 7, until)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SET failed_attempts = failed_attempts \+ 1`).
			WithArgs(id.String(), 7, until).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).RecordLoginFailure(ctx, id, 7, until)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_ResetLoginFailures(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()
	mock.ExpectExec(`SET failed_attempts = 0, locked_until = NULL`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewUserRepository(mock).ResetLoginFailures(context.Background(), id))
}

func TestRefreshTokenRepository_UpsertByUser(t *testing.T) {
	mock := newMock(t)
	token, err := auth.NewRefreshToken(ulid.Make(), "plaintext", time.Now().Add(time.Hour))
	require.NoError(t, err)

	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(token.ID.String(), token.UserID.String(), token.TokenHash, token.ExpiresAt,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewRefreshTokenRepository(mock).UpsertByUser(context.Background(), token))
}

func TestRefreshTokenRepository_GetByToken(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "user_id", "token_hash", "expires_at", "revoked", "created_at", "updated_at"}

	t.Run("scans row", func(t *testing.T) {
		mock := newMock(t)
		id, userID := ulid.Make(), ulid.Make()
		exp := time.Now().Add(time.Hour)
		mock.ExpectQuery(`FROM refresh_tokens`).
			WithArgs("hash").
			WillReturnRows(pgxmock.NewRows(cols).AddRow(id.String(), userID.String(), "hash", exp, true, exp, exp))

		got, err := NewRefreshTokenRepository(mock).GetByToken(ctx, "hash")
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, userID, got.UserID)
		assert.True(t, got.Revoked)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM refresh_tokens`).WithArgs("hash").WillReturnError(pgx.ErrNoRows)
		_, err := NewRefreshTokenRepository(mock).GetByToken(ctx, "hash")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestRefreshTokenRepository_Rotate(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	exp := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		affected int64
		execErr  error
		notFound bool
	}{
		{name: "winner", affected: 1},
		{name: "lost the race", affected: 0, notFound: true},
		{name: "db error", execErr: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			e := mock.ExpectExec(`WHERE id = \$1 AND token_hash = \$2 AND NOT revoked`).
				WithArgs(id.String(), "old", "new", exp)
			if tt.execErr != nil {
				e.WillReturnError(tt.execErr)
			} else {
				e.WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			}

			err := NewRefreshTokenRepository(mock).Rotate(ctx, id, "old", "new", exp)
			switch {
			case tt.execErr != nil:
				errutil.AssertErrorCode(t, err, "REFRESH_ROTATE_FAILED")
			case tt.notFound:
				assert.ErrorIs(t, err, auth.ErrNotFound)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestRefreshTokenRepository_Deletes(t *testing.T) {
	ctx := context.Background()

	t.Run("by user", func(t *testing.T) {
		mock := newMock(t)
		userID := ulid.Make()
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, NewRefreshTokenRepository(mock).DeleteByUser(ctx, userID))
	})

	t.Run("expired", func(t *testing.T) {
		mock := newMock(t)
		now := time.Now()
		mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 4))
		n, err := NewRefreshTokenRepository(mock).DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})
}

func sampleOTP() *auth.OTPRecord {
	now := time.Now()
	return &auth.OTPRecord{
		ID:        ulid.Make(),
		UserID:    ulid.Make(),
		Purpose:   auth.OTPPurposeLogin,
		CodeHash:  "codehash",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	}
}

func TestOTPRepository_Replace(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts on the live code index", func(t *testing.T) {
		mock := newMock(t)
		rec := sampleOTP()
		mock.ExpectExec(`(?s)INSERT INTO otp_codes .* ON CONFLICT \(user_id, purpose\) WHERE consumed_at IS NULL DO UPDATE`).
			WithArgs(rec.ID.String(), rec.UserID.String(), "LOGIN", "codehash", rec.ExpiresAt, 0, rec.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewOTPRepository(mock).Replace(ctx, rec))
	})

	t.Run("write failure", func(t *testing.T) {
		mock := newMock(t)
		rec := sampleOTP()
		mock.ExpectExec(`INSERT INTO otp_codes`).
			WithArgs(rec.ID.String(), rec.UserID.String(), "LOGIN", "codehash", rec.ExpiresAt, 0, rec.CreatedAt).
			WillReturnError(errors.New("disk full"))

		err := NewOTPRepository(mock).Replace(ctx, rec)
		errutil.AssertErrorCode(t, err, "OTP_REPLACE_FAILED")
		errutil.AssertErrorContext(t, err, "purpose", "LOGIN")
		assert.ErrorContains(t, err, "disk full")
	})
}

func TestOTPRepository_GetLive(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "user_id", "purpose", "code_hash", "expires_at", "consumed_at", "attempts", "created_at"}

	t.Run("scans newest live code", func(t *testing.T) {
		mock := newMock(t)
		rec := sampleOTP()
		mock.ExpectQuery(`WHERE user_id = \$1 AND purpose = \$2 AND consumed_at IS NULL`).
			WithArgs(rec.UserID.String(), "LOGIN").
			WillReturnRows(pgxmock.NewRows(cols).AddRow(
				rec.ID.String(), rec.UserID.String(), "LOGIN", "codehash", rec.ExpiresAt, (*time.Time)(nil), 2, rec.CreatedAt,
			))

		got, err := NewOTPRepository(mock).GetLive(ctx, rec.UserID, auth.OTPPurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, auth.OTPPurposeLogin, got.Purpose)
		assert.Equal(t, 2, got.Attempts)
	})

	t.Run("none", func(t *testing.T) {
		mock := newMock(t)
		userID := ulid.Make()
		mock.ExpectQuery(`FROM otp_codes`).WithArgs(userID.String(), "LOGIN").WillReturnError(pgx.ErrNoRows)
		_, err := NewOTPRepository(mock).GetLive(ctx, userID, auth.OTPPurposeLogin)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestOTPRepository_IncrementAttempts(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()
	mock.ExpectQuery(`SET attempts = attempts \+ 1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(4))

	n, err := NewOTPRepository(mock).IncrementAttempts(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestOTPRepository_MarkConsumed(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Now()

	t.Run("first use", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SET consumed_at = \$2 WHERE id = \$1 AND consumed_at IS NULL`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewOTPRepository(mock).MarkConsumed(ctx, id, at))
	})

	t.Run("already consumed", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SET consumed_at`).
			WithArgs(id.String(), at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		err := NewOTPRepository(mock).MarkConsumed(ctx, id, at)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}
