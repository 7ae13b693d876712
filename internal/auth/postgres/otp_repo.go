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

// OTPRepository implements auth.OTPRepository using PostgreSQL.
type OTPRepository struct {
	pool poolIface
}

// NewOTPRepository creates a new OTPRepository.
func NewOTPRepository(pool poolIface) *OTPRepository {
	return &OTPRepository{pool: pool}
}

// Replace makes rec the live code for its user and purpose. The upsert
// targets the partial unique index on live codes, so concurrent issues for
// the same user serialize on the index instead of failing.
func (r *OTPRepository) Replace(ctx context.Context, rec *auth.OTPRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otp_codes (id, user_id, purpose, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, purpose) WHERE consumed_at IS NULL DO UPDATE SET
			id = EXCLUDED.id,
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = EXCLUDED.attempts,
			created_at = EXCLUDED.created_at
	`,
		rec.ID.String(),
		rec.UserID.String(),
		string(rec.Purpose),
		rec.CodeHash,
		rec.ExpiresAt,
		rec.Attempts,
		rec.CreatedAt,
	)
	if err != nil {
		return oops.Code("OTP_REPLACE_FAILED").
			With("operation", "upsert otp").
			With("user_id", rec.UserID.String()).
			With("purpose", string(rec.Purpose)).
			Wrap(err)
	}
	return nil
}

// GetLive returns the unconsumed code for a user and purpose.
func (r *OTPRepository) GetLive(ctx context.Context, userID ulid.ULID, purpose auth.OTPPurpose) (*auth.OTPRecord, error) {
	var (
		rec            auth.OTPRecord
		idStr, userStr string
		purposeStr     string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, purpose, code_hash, expires_at, consumed_at, attempts, created_at
		FROM otp_codes
		WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`, userID.String(), string(purpose)).Scan(
		&idStr, &userStr, &purposeStr, &rec.CodeHash, &rec.ExpiresAt, &rec.ConsumedAt, &rec.Attempts, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").
			With("user_id", userID.String()).
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_GET_FAILED").
			With("operation", "get live otp").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if rec.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("OTP_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if rec.UserID, err = ulid.Parse(userStr); err != nil {
		return nil, oops.Code("OTP_CORRUPT_ID").With("user_id", userStr).Wrap(err)
	}
	rec.Purpose = auth.OTPPurpose(purposeStr)
	return &rec, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts
	`, id.String()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("OTP_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("OTP_INCREMENT_FAILED").
			With("operation", "increment attempts").
			With("id", id.String()).
			Wrap(err)
	}
	return attempts, nil
}

// MarkConsumed sets consumed_at if the code has not been consumed yet.
func (r *OTPRepository) MarkConsumed(ctx context.Context, id ulid.ULID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL
	`, id.String(), at)
	if err != nil {
		return oops.Code("OTP_CONSUME_FAILED").
			With("operation", "mark consumed").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("OTP_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes codes that expired before now.
func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("OTP_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired otps").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}
