// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MessageResult is the plain outcome of an operation with no payload.
type MessageResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RequestPasswordReset emails a signed reset link to the account owner.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (result *MessageResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.request_password_reset")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, err := s.signer.Sign(PurposePasswordReset, user.ID, "")
	if err != nil {
		return nil, oops.Code("AUTH_RESET_REQUEST_FAILED").Wrap(err)
	}

	link := s.ResetLink(token.Token)
	msg := Email{
		To:      user.Email,
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Use this link to reset your password: %s", link),
		HTML:    fmt.Sprintf(`<p>Click <a href="%s">here</a> to reset your password.</p>`, link),
	}
	if err := s.notifier.SendEmail(ctx, msg); err != nil {
		return nil, oops.Code("AUTH_RESET_SEND_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &MessageResult{Success: true, Message: "Password reset link sent to your email"}, nil
}

// ResetLink builds the link a reset email points at.
func (s *Service) ResetLink(token string) string {
	return s.clientURL + "/api/auth/verify-reset?token=" + url.QueryEscape(token)
}

// ResetPassword sets a new password for the user named by a reset token.
// With a deny-list configured the token is claimed first and works only once;
// the claim is released again if the password could not be changed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (result *MessageResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer func() { endSpan(span, err) }()

	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	claims, err := s.signer.Verify(PurposePasswordReset, token)
	if err != nil {
		return nil, invalidResetToken()
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, invalidResetToken()
	}

	if err := s.denylist.Deny(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, invalidResetToken()
		}
		return nil, oops.Code("AUTH_RESET_FAILED").
			With("operation", "claim reset token").
			Wrap(err)
	}
	defer func() {
		if err != nil {
			s.releaseResetToken(ctx, claims.ID)
		}
	}()

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_RESET_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", userID.String())
	return &MessageResult{Success: true, Message: "Password reset successful"}, nil
}

// releaseResetToken undoes a claim so the link can be retried.
func (s *Service) releaseResetToken(ctx context.Context, jti string) {
	if err := s.denylist.Release(context.WithoutCancel(ctx), jti); err != nil {
		s.logger.WarnContext(ctx, "failed to release reset token claim", "jti", jti, "error", err)
	}
}

// ChangePassword replaces the password of a signed-in user after checking the
// current one. Every refresh token for the user is revoked.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, newPassword string) (result *MessageResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.change_password")
	defer func() { endSpan(span, err) }()

	if current == "" {
		return nil, fail(KindValidation, "AUTH_CURRENT_PASSWORD_REQUIRED").Errorf("Current password is required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		return nil, fail(KindAuth, "AUTH_INVALID_PASSWORD").Errorf("Current password is incorrect")
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return nil, err
	}
	if err := s.refresh.DeleteByUser(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke refresh tokens after password change",
			"user_id", user.ID.String(), "error", err)
	}

	s.sendNotice(ctx, Email{
		To:      user.Email,
		Subject: "Your password was changed",
		Text:    "The password for your account was just changed. If this wasn't you, reset it immediately.",
	})
	return &MessageResult{Success: true, Message: "Password updated successfully"}, nil
}

func (s *Service) setPassword(ctx context.Context, userID ulid.ULID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_UPDATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound()
		}
		return oops.Code("AUTH_PASSWORD_UPDATE_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

func invalidResetToken() error {
	return fail(KindAuth, "AUTH_INVALID_RESET_TOKEN").Errorf("Invalid or expired token")
}
