// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// SigninResult is returned by SigninWithPassword.
type SigninResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginResult is returned once the login code has been verified.
type LoginResult struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message"`
	User         Summary `json:"user"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

// SigninWithPassword checks the password and emails a login code.
// No tokens are issued until VerifyLoginOTP succeeds.
func (s *Service) SigninWithPassword(ctx context.Context, email, password string) (result *SigninResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.signin")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, fail(KindValidation, "AUTH_INVALID_PASSWORD").
			Errorf("Password must be at least %d characters long", MinPasswordLength)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			//nolint:errcheck // timing only, the result is irrelevant
			s.hasher.Verify(password, dummyPasswordHash)
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	// Lockout is checked after verification to keep timing uniform.
	if remaining := s.lockout.Remaining(user.LockedUntil, s.now()); remaining > 0 {
		return nil, fail(KindAuth, "AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			With("retry_after", remaining.Round(time.Second).String()).
			Errorf("Account is temporarily locked. Try again later")
	}

	if !valid {
		s.recordFailure(ctx, user)
		return nil, fail(KindAuth, "AUTH_INVALID_PASSWORD").Errorf("Invalid password")
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetLoginFailures(ctx, user.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login failures",
				"user_id", user.ID.String(), "error", err)
		}
	}
	s.upgradeHash(ctx, user, password)

	if err := s.otp.CreateAndSend(ctx, user, OTPPurposeLogin); err != nil {
		return nil, err
	}

	return &SigninResult{
		Success: true,
		Message: "OTP sent to your email. Please verify to complete login.",
	}, nil
}

// VerifyLoginOTP completes a login by consuming the emailed code and issuing
// an access and refresh token pair.
func (s *Service) VerifyLoginOTP(ctx context.Context, email, code string) (result *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.verify_login_otp")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fail(KindValidation, "AUTH_OTP_REQUIRED").Errorf("OTP is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_VERIFY_OTP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if err := s.otp.Verify(ctx, user.ID, code, OTPPurposeLogin); err != nil {
		return nil, err
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	row, err := NewRefreshToken(user.ID, refresh.Token, refresh.ExpiresAt)
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_OTP_FAILED").Wrap(err)
	}
	if err := s.refresh.UpsertByUser(ctx, row); err != nil {
		return nil, oops.Code("AUTH_VERIFY_OTP_FAILED").
			With("operation", "upsert refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
	return &LoginResult{
		Success:      true,
		Message:      "Login successful",
		User:         user.Summary(),
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
	}, nil
}

// recordFailure bumps the failure counter and locks the account once the
// policy threshold is hit. Errors are logged; the caller still fails the login.
func (s *Service) recordFailure(ctx context.Context, user *User) {
	if !s.lockout.Enabled() {
		return
	}
	count, err := s.users.RecordLoginFailure(ctx, user.ID, s.lockout.Threshold, s.lockout.LockUntil(s.now()))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			"user_id", user.ID.String(), "error", err)
		return
	}
	if count >= s.lockout.Threshold {
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			"user_id", user.ID.String(), "failures", count)
	}
}

// upgradeHash re-hashes legacy or weaker password hashes after a successful check.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = hash
}

func (s *Service) issuePair(user *User) (access, refresh IssuedToken, err error) {
	access, err = s.signer.Sign(PurposeAccess, user.ID, user.Role)
	if err != nil {
		return access, refresh, err
	}
	refresh, err = s.signer.Sign(PurposeRefresh, user.ID, user.Role)
	return access, refresh, err
}
