// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshResult is returned by RefreshAccessToken.
type RefreshResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LogoutResult is returned by Logout.
type LogoutResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FullName string `json:"fullName"`
}

// RefreshAccessToken exchanges a refresh token for a new token pair. The
// stored row is rotated in place; of two concurrent calls presenting the
// same token only one succeeds.
func (s *Service) RefreshAccessToken(ctx context.Context, token string) (result *RefreshResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.refresh")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalidRefreshToken()
	}

	row, err := s.refresh.GetByToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken()
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get refresh token").
			Wrap(err)
	}
	if !row.IsUsable(s.now()) {
		return nil, fail(KindAuth, "AUTH_REFRESH_EXPIRED").Errorf("Refresh token expired or revoked")
	}

	claims, err := s.signer.Verify(PurposeRefresh, token)
	if err != nil {
		return nil, invalidRefreshToken()
	}
	if userID, err := claims.UserID(); err != nil || userID != row.UserID {
		return nil, invalidRefreshToken()
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken()
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	access, refresh, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.refresh.Rotate(ctx, row.ID, row.TokenHash, HashToken(refresh.Token), refresh.ExpiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidRefreshToken()
		}
		return nil, oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "rotate refresh token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &RefreshResult{
		Success:      true,
		Message:      "Token refreshed successfully",
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
	}, nil
}

// Logout removes every refresh token of userID. When ctx carries the
// caller's principal and a deny-list is configured, the presented access
// token is revoked as well.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID) (result *LogoutResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if err := s.refresh.DeleteByUser(ctx, user.ID); err != nil {
		return nil, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete refresh tokens").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if p, ok := PrincipalFrom(ctx); ok && p.UserID == user.ID && p.TokenID != "" {
		if err := s.denylist.Deny(ctx, p.TokenID, p.ExpiresAt); err != nil && !errors.Is(err, ErrDuplicate) {
			s.logger.WarnContext(ctx, "failed to deny access token on logout",
				"user_id", user.ID.String(), "error", err)
		}
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", user.ID.String())
	return &LogoutResult{Success: true, Message: "Logged out successfully", FullName: user.FullName}, nil
}

func invalidRefreshToken() error {
	return fail(KindAuth, "AUTH_INVALID_REFRESH_TOKEN").Errorf("Invalid refresh token")
}
