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

// RefreshTokenRepository implements auth.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool poolIface
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool poolIface) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// UpsertByUser inserts token or overwrites the user's existing row in place.
func (r *RefreshTokenRepository) UpsertByUser(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at,
		    revoked = false,
		    updated_at = EXCLUDED.updated_at
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		return oops.Code("REFRESH_UPSERT_FAILED").
			With("operation", "upsert refresh token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByToken retrieves a row by token hash.
func (r *RefreshTokenRepository) GetByToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	var (
		t             auth.RefreshToken
		idStr, userID string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&idStr, &userID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_FAILED").
			With("operation", "get refresh token").
			Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("REFRESH_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userID); err != nil {
		return nil, oops.Code("REFRESH_CORRUPT_ID").With("user_id", userID).Wrap(err)
	}
	return &t, nil
}

// Rotate swaps the token hash only if the row still holds oldHash.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, id ulid.ULID, oldHash, newHash string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET token_hash = $3, expires_at = $4, updated_at = now()
		WHERE id = $1 AND token_hash = $2 AND NOT revoked
	`, id.String(), oldHash, newHash, expiresAt)
	if err != nil {
		return oops.Code("REFRESH_ROTATE_FAILED").
			With("operation", "rotate refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("REFRESH_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes every refresh row for a user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("REFRESH_DELETE_FAILED").
			With("operation", "delete refresh tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes rows that expired before now.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}
