// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// OTPPurpose binds a code to the flow that issued it.
type OTPPurpose string

// OTP purposes.
const (
	OTPPurposeLogin OTPPurpose = "LOGIN"
)

// OTP defaults.
const (
	OTPDigits             = 6
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPMaxAttempts = 5
)

// OTPRecord is a stored one-time code. Only the hash of the code is kept.
type OTPRecord struct {
	ID         ulid.ULID
	UserID     ulid.ULID
	Purpose    OTPPurpose
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	Attempts   int
	CreatedAt  time.Time
}

// IsExpiredAt reports whether the code has expired at t.
func (r *OTPRecord) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// OTPRepository manages one-time code persistence.
type OTPRepository interface {
	// Replace stores rec as the only unconsumed code for its user and
	// purpose, overwriting any live one in a single statement.
	Replace(ctx context.Context, rec *OTPRecord) error

	// GetLive returns the unconsumed code for a user and purpose.
	GetLive(ctx context.Context, userID ulid.ULID, purpose OTPPurpose) (*OTPRecord, error)

	// IncrementAttempts atomically bumps the failed attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id ulid.ULID) (int, error)

	// MarkConsumed sets consumed_at only if the code is still unconsumed.
	// Returns ErrNotFound if it was already consumed.
	MarkConsumed(ctx context.Context, id ulid.ULID, at time.Time) error

	// DeleteExpired removes codes that expired before now. Returns the count removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OTPConfig tunes an OTPManager. Zero values take the defaults.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// OTPManager issues, delivers and verifies one-time codes.
type OTPManager struct {
	repo        OTPRepository
	notifier    Notifier
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

// NewOTPManager creates an OTPManager.
func NewOTPManager(repo OTPRepository, notifier Notifier, cfg OTPConfig, logger *slog.Logger) (*OTPManager, error) {
	if repo == nil {
		return nil, oops.Errorf("otp repository is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultOTPMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPManager{
		repo:        repo,
		notifier:    notifier,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		logger:      logger,
	}, nil
}

// CreateAndSend generates a fresh code for user, replaces any live code for
// the same purpose and emails it. A delivery failure is returned to the caller.
func (m *OTPManager) CreateAndSend(ctx context.Context, user *User, purpose OTPPurpose) error {
	code, err := generateOTP()
	if err != nil {
		return oops.Code("OTP_GENERATE_FAILED").Wrap(err)
	}

	now := m.now()
	rec := &OTPRecord{
		ID:        ulid.Make(),
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hashOTP(user.ID, code),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.repo.Replace(ctx, rec); err != nil {
		return oops.Code("OTP_STORE_FAILED").
			With("operation", "replace otp").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	minutes := int(m.ttl.Round(time.Minute) / time.Minute)
	msg := Email{
		To:      user.Email,
		Subject: "Your verification code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
		HTML: fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
			code, minutes),
	}
	if err := m.notifier.SendEmail(ctx, msg); err != nil {
		return oops.Code("OTP_SEND_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	m.logger.DebugContext(ctx, "otp issued",
		"user_id", user.ID.String(), "purpose", string(purpose), "otp_id", rec.ID.String())
	return nil
}

// Verify consumes the live code for userID if code matches and purpose agrees.
// Wrong codes count against the attempt budget; the code is burned once the
// budget is spent.
func (m *OTPManager) Verify(ctx context.Context, userID ulid.ULID, code string, purpose OTPPurpose) error {
	rec, err := m.repo.GetLive(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return otpNotFound()
		}
		return oops.Code("OTP_VERIFY_FAILED").
			With("operation", "get live otp").
			With("user_id", userID.String()).
			Wrap(err)
	}

	now := m.now()
	if rec.IsExpiredAt(now) {
		return fail(KindAuth, "OTP_EXPIRED").Errorf("OTP has expired")
	}
	if rec.Purpose != purpose {
		return fail(KindAuth, "OTP_PURPOSE_MISMATCH").
			With("expected", string(purpose)).
			Errorf("OTP was not issued for this action")
	}
	if rec.Attempts >= m.maxAttempts {
		return attemptsExceeded()
	}

	given := hashOTP(userID, strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(given), []byte(rec.CodeHash)) != 1 {
		attempts, incErr := m.repo.IncrementAttempts(ctx, rec.ID)
		if incErr != nil {
			return oops.Code("OTP_VERIFY_FAILED").
				With("operation", "increment attempts").
				With("otp_id", rec.ID.String()).
				Wrap(incErr)
		}
		if attempts >= m.maxAttempts {
			if burnErr := m.repo.MarkConsumed(ctx, rec.ID, now); burnErr != nil && !errors.Is(burnErr, ErrNotFound) {
				m.logger.WarnContext(ctx, "failed to burn exhausted otp",
					"otp_id", rec.ID.String(), "error", burnErr)
			}
			return attemptsExceeded()
		}
		return fail(KindAuth, "OTP_MISMATCH").With("attempts", attempts).Errorf("Invalid OTP")
	}

	if err := m.repo.MarkConsumed(ctx, rec.ID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return otpNotFound()
		}
		return oops.Code("OTP_VERIFY_FAILED").
			With("operation", "mark consumed").
			With("otp_id", rec.ID.String()).
			Wrap(err)
	}
	return nil
}

// PurgeExpired deletes codes that have expired.
func (m *OTPManager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("OTP_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

func otpNotFound() error {
	return fail(KindAuth, "OTP_NOT_FOUND").Errorf("OTP not found or already used")
}

func attemptsExceeded() error {
	return fail(KindAuth, "OTP_ATTEMPTS_EXCEEDED").Errorf("Too many invalid attempts. Request a new OTP")
}

// generateOTP returns a uniformly random zero-padded numeric code.
func generateOTP() (string, error) {
	limit := big.NewInt(1)
	for range OTPDigits {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}

// hashOTP binds the code to its owner so equal codes for different users hash differently.
func hashOTP(userID ulid.ULID, code string) string {
	return HashToken(userID.String() + ":" + code)
}
