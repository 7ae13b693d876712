// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth_test

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// memUsers is an in-memory UserRepository with unique emails.
type memUsers struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]*auth.User
	err   error
	calls int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[ulid.ULID]*auth.User)}
}

func (m *memUsers) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, u := range m.byID {
		if u.Email == user.Email {
			return auth.ErrDuplicate
		}
	}
	cp := *user
	m.byID[user.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.byID {
		if u.Email == auth.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, id ulid.ULID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) UpdateRole(_ context.Context, id ulid.ULID, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memUsers) RecordLoginFailure(_ context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return 0, auth.ErrNotFound
	}
	u.FailedAttempts++
	if u.FailedAttempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	return u.FailedAttempts, nil
}

func (m *memUsers) ResetLoginFailures(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memUsers) get(id ulid.ULID) auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

// memRefresh is an in-memory RefreshTokenRepository keyed by user.
type memRefresh struct {
	mu     sync.Mutex
	byUser map[ulid.ULID]*auth.RefreshToken
}

func newMemRefresh() *memRefresh {
	return &memRefresh{byUser: make(map[ulid.ULID]*auth.RefreshToken)}
}

func (m *memRefresh) UpsertByUser(_ context.Context, token *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[token.UserID]; ok {
		existing.TokenHash = token.TokenHash
		existing.ExpiresAt = token.ExpiresAt
		existing.Revoked = false
		return nil
	}
	cp := *token
	m.byUser[token.UserID] = &cp
	return nil
}

func (m *memRefresh) GetByToken(_ context.Context, hash string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byUser {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memRefresh) Rotate(_ context.Context, id ulid.ULID, oldHash, newHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byUser {
		if t.ID == id && t.TokenHash == oldHash {
			t.TokenHash = newHash
			t.ExpiresAt = expiresAt
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memRefresh) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
	return nil
}

func (m *memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.byUser {
		if t.ExpiresAt.Before(now) {
			delete(m.byUser, id)
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) forUser(id ulid.ULID) (auth.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byUser[id]
	if !ok {
		return auth.RefreshToken{}, false
	}
	return *t, true
}

// memOTP is an in-memory OTPRepository.
type memOTP struct {
	mu      sync.Mutex
	records []*auth.OTPRecord
}

func (m *memOTP) Replace(_ context.Context, rec *auth.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.UserID == rec.UserID && r.Purpose == rec.Purpose && r.ConsumedAt == nil {
			continue
		}
		kept = append(kept, r)
	}
	cp := *rec
	m.records = append(kept, &cp)
	return nil
}

func (m *memOTP) GetLive(_ context.Context, userID ulid.ULID, purpose auth.OTPPurpose) (*auth.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.UserID == userID && r.Purpose == purpose && r.ConsumedAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memOTP) IncrementAttempts(_ context.Context, id ulid.ULID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.Attempts++
			return r.Attempts, nil
		}
	}
	return 0, auth.ErrNotFound
}

func (m *memOTP) MarkConsumed(_ context.Context, id ulid.ULID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.ConsumedAt == nil {
			r.ConsumedAt = &at
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memOTP) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var n int64
	for _, r := range m.records {
		if r.ExpiresAt.Before(now) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return n, nil
}

func (m *memOTP) live() []auth.OTPRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.OTPRecord
	for _, r := range m.records {
		if r.ConsumedAt == nil {
			out = append(out, *r)
		}
	}
	return out
}

// inbox records delivered email and can be told to fail.
type inbox struct {
	mu   sync.Mutex
	sent []auth.Email
	err  error
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (n *inbox) SendEmail(_ context.Context, msg auth.Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *inbox) last() auth.Email {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return auth.Email{}
	}
	return n.sent[len(n.sent)-1]
}

// lastCode extracts the code from the most recent OTP email.
func (n *inbox) lastCode() string {
	return codePattern.FindString(n.last().Text)
}

// memDenylist is a set-if-absent deny-list.
type memDenylist struct {
	mu     sync.Mutex
	denied map[string]time.Time
}

func newMemDenylist() *memDenylist {
	return &memDenylist{denied: make(map[string]time.Time)}
}

func (d *memDenylist) Deny(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.denied[jti]; ok {
		return auth.ErrDuplicate
	}
	d.denied[jti] = until
	return nil
}

func (d *memDenylist) IsDenied(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.denied[jti]
	return ok, nil
}

func (d *memDenylist) Release(_ context.Context, jti string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.denied, jti)
	return nil
}

// mockNotifier is a testify mock for Notifier.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendEmail(ctx context.Context, msg auth.Email) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
