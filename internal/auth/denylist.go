// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"time"
)

// Denylist records revoked token IDs until their natural expiry.
type Denylist interface {
	// Deny marks jti revoked until the given time. Returns ErrDuplicate if
	// jti was already denied, so a caller can claim a token exactly once.
	Deny(ctx context.Context, jti string, until time.Time) error

	// IsDenied reports whether jti has been revoked.
	IsDenied(ctx context.Context, jti string) (bool, error)

	// Release removes a denial. Releasing an unknown jti is not an error.
	Release(ctx context.Context, jti string) error
}

// noDenylist keeps tokens stateless: nothing is ever denied.
type noDenylist struct{}

func (noDenylist) Deny(context.Context, string, time.Time) error { return nil }

func (noDenylist) IsDenied(context.Context, string) (bool, error) { return false, nil }

func (noDenylist) Release(context.Context, string) error { return nil }
