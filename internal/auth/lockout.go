// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"time"
)

// Lockout configuration defaults.
const (
	// DefaultLockoutDuration is how long an account stays locked after too many failures.
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultLockoutThreshold is the number of consecutive password failures that locks an account.
	DefaultLockoutThreshold = 7
)

// LockoutPolicy controls account lockout after repeated password failures.
// A zero Threshold disables lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks an account for 15 minutes after 7 failures.
var DefaultLockoutPolicy = LockoutPolicy{
	Threshold: DefaultLockoutThreshold,
	Duration:  DefaultLockoutDuration,
}

// Enabled reports whether the policy locks accounts at all.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// LockUntil returns the lockout expiry for a failure recorded at now.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.Duration)
}

// Remaining returns how long the lockout has left, or zero if not locked.
func (p LockoutPolicy) Remaining(lockedUntil *time.Time, now time.Time) time.Duration {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return 0
	}
	return lockedUntil.Sub(now)
}
