// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package redis stores revoked token IDs in Redis so every replica sees the
// same denylist.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// DefaultKeyPrefix namespaces denylist keys.
const DefaultKeyPrefix = "eventdesk:deny:"

// Denylist implements auth.Denylist on a Redis client. Entries expire with
// the token they deny.
type Denylist struct {
	client goredis.Cmdable
	prefix string
	now    func() time.Time
}

// NewDenylist creates a Denylist. An empty prefix uses DefaultKeyPrefix.
func NewDenylist(client goredis.Cmdable, prefix string) *Denylist {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Denylist{client: client, prefix: prefix, now: time.Now}
}

// Deny records jti until the given time. It returns auth.ErrDuplicate when
// the jti is already denied, which lets callers claim single-use tokens.
func (d *Denylist) Deny(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		// Already expired tokens fail signature checks on their own.
		return nil
	}
	ok, err := d.client.SetNX(ctx, d.prefix+jti, 1, ttl).Result()
	if err != nil {
		return oops.Code("DENYLIST_WRITE_FAILED").
			With("operation", "deny token").
			With("jti", jti).
			Wrap(err)
	}
	if !ok {
		return oops.Code("DENYLIST_ALREADY_DENIED").With("jti", jti).Wrap(auth.ErrDuplicate)
	}
	return nil
}

// IsDenied reports whether jti has been denied.
func (d *Denylist) IsDenied(ctx context.Context, jti string) (bool, error) {
	err := d.client.Get(ctx, d.prefix+jti).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("DENYLIST_READ_FAILED").
			With("operation", "check token").
			With("jti", jti).
			Wrap(err)
	}
	return true, nil
}

// Release deletes the entry for jti.
func (d *Denylist) Release(ctx context.Context, jti string) error {
	if err := d.client.Del(ctx, d.prefix+jti).Err(); err != nil {
		return oops.Code("DENYLIST_WRITE_FAILED").
			With("operation", "release token").
			With("jti", jti).
			Wrap(err)
	}
	return nil
}

var _ auth.Denylist = (*Denylist)(nil)
