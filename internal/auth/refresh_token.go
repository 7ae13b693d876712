// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshToken is the single refresh credential a user holds.
// Only the SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRefreshToken creates a validated RefreshToken for a plaintext token.
func NewRefreshToken(userID ulid.ULID, token string, expiresAt time.Time) (*RefreshToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("REFRESH_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("REFRESH_INVALID_TOKEN").Errorf("token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	now := time.Now()
	return &RefreshToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsUsable reports whether the row can be rotated at now.
func (t *RefreshToken) IsUsable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// HashToken returns the hex SHA-256 of a token for storage and lookup.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenRepository manages refresh token persistence.
type RefreshTokenRepository interface {
	// UpsertByUser stores token as the user's only refresh row in a single
	// statement. An existing row keeps its ID, takes the new hash and expiry,
	// and has revoked cleared.
	UpsertByUser(ctx context.Context, token *RefreshToken) error

	// GetByToken retrieves a row by the hash of its token.
	GetByToken(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Rotate replaces the hash and expiry of row id only if it still holds
	// oldHash. Returns ErrNotFound when another rotation got there first.
	Rotate(ctx context.Context, id ulid.ULID, oldHash, newHash string, expiresAt time.Time) error

	// DeleteByUser removes every refresh row for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes rows that expired before now. Returns the count removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
