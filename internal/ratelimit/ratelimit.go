// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package ratelimit throttles requests per key, in Redis when replicas share
// limits and in-process otherwise.
package ratelimit

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Valid reports whether the rule can throttle anything.
func (r Rule) Valid() bool {
	return r.Limit > 0 && r.Window > 0
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// fixedWindow counts a hit and starts the window on the first one.
var fixedWindow = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// Redis is a fixed-window limiter shared by every process using the same
// Redis database.
type Redis struct {
	client goredis.Scripter
	rule   Rule
	prefix string
}

// NewRedis creates a Redis limiter.
func NewRedis(client goredis.Scripter, rule Rule, prefix string) (*Redis, error) {
	if client == nil {
		return nil, oops.Code("RATELIMIT_CONFIG_INVALID").Errorf("redis client is required")
	}
	if !rule.Valid() {
		return nil, invalidRule(rule)
	}
	if prefix == "" {
		prefix = "eventdesk:rl:"
	}
	return &Redis{client: client, rule: rule, prefix: prefix}, nil
}

// Allow counts the request against the current window.
func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, l.rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_BACKEND_FAILED").
			With("operation", "count request").
			With("key", key).
			Wrap(err)
	}
	if len(res) != 2 {
		return Decision{}, oops.Code("RATELIMIT_BACKEND_FAILED").
			With("key", key).
			Errorf("unexpected script result length %d", len(res))
	}

	count := int(res[0])
	if count <= l.rule.Limit {
		return Decision{Allowed: true, Remaining: l.rule.Limit - count}, nil
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.rule.Window
	}
	return Decision{RetryAfter: retry}, nil
}

// Local is an in-process token bucket per key. Idle buckets are swept on
// access once they have been quiet for idleTTL.
type Local struct {
	rule    Rule
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocal creates an in-process limiter. The bucket refills Limit tokens per
// Window and holds at most Limit.
func NewLocal(rule Rule) (*Local, error) {
	if !rule.Valid() {
		return nil, invalidRule(rule)
	}
	idle := 5 * time.Minute
	if rule.Window > idle {
		idle = rule.Window
	}
	return &Local{
		rule:    rule,
		idleTTL: idle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}, nil
}

// Allow takes a token from key's bucket.
func (l *Local) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.rule.Window / time.Duration(l.rule.Limit))
		b = &bucket{lim: rate.NewLimiter(every, l.rule.Limit)}
		l.buckets[key] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int(b.lim.TokensAt(now))}, nil
}

func (l *Local) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}

func invalidRule(rule Rule) error {
	return oops.Code("RATELIMIT_CONFIG_INVALID").
		With("limit", rule.Limit).
		With("window", rule.Window.String()).
		Errorf("limit and window must be positive")
}

var (
	_ Limiter = (*Redis)(nil)
	_ Limiter = (*Local)(nil)
)
