// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Principal is the caller identified by a verified access token.
type Principal struct {
	UserID    ulid.ULID
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SystemPrincipal acts for operator tooling, such as granting the first
// SUPER_ADMIN from the command line.
var SystemPrincipal = Principal{Role: RoleSuperAdmin}
