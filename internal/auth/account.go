// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RoleChangeResult is returned by ChangeUserRole.
type RoleChangeResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	User    Summary `json:"user"`
}

// Authenticate verifies an access token and returns the caller it names.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.signer.Verify(PurposeAccess, accessToken)
	if err != nil {
		return Principal{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return Principal{}, err
	}

	denied, err := s.denylist.IsDenied(ctx, claims.ID)
	if err != nil {
		return Principal{}, oops.Code("AUTH_DENYLIST_FAILED").
			With("operation", "check denylist").
			Wrap(err)
	}
	if denied {
		return Principal{}, fail(KindAuth, "TOKEN_REVOKED").Errorf("token has been revoked")
	}

	return Principal{
		UserID:    userID,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// VerifyCredentials returns the ID of the account matching email and
// password. It records no login failures and sends no code; operator tooling
// uses it to confirm which account it is acting on.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (ulid.ULID, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, userNotFound()
		}
		return ulid.ULID{}, oops.Code("AUTH_VERIFY_CREDENTIALS_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_VERIFY_CREDENTIALS_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		return ulid.ULID{}, fail(KindAuth, "AUTH_INVALID_PASSWORD").Errorf("Invalid password")
	}
	return user.ID, nil
}

// ChangeUserRole sets the role of target. Only a SUPER_ADMIN may do this.
func (s *Service) ChangeUserRole(ctx context.Context, actor Principal, target ulid.ULID, role string) (result *RoleChangeResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.change_user_role")
	defer func() { endSpan(span, err) }()

	if actor.Role != RoleSuperAdmin {
		return nil, fail(KindForbidden, "AUTH_FORBIDDEN").
			With("actor_id", actor.UserID.String()).
			Errorf("Only super admins can change user roles")
	}
	newRole, ok := ParseRole(role)
	if !ok {
		return nil, fail(KindValidation, "AUTH_INVALID_ROLE").With("role", role).Errorf("Invalid role")
	}

	user, err := s.users.GetByID(ctx, target)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_ROLE_CHANGE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if err := s.users.UpdateRole(ctx, user.ID, newRole); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound()
		}
		return nil, oops.Code("AUTH_ROLE_CHANGE_FAILED").
			With("operation", "update role").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.Role = newRole

	s.logger.InfoContext(ctx, "user role changed",
		"user_id", user.ID.String(), "role", string(newRole), "actor_id", actor.UserID.String())
	s.sendNotice(ctx, Email{
		To:      user.Email,
		Subject: "Your role was updated",
		Text:    fmt.Sprintf("Your account role is now %s.", newRole),
	})
	return &RoleChangeResult{Success: true, Message: "User role updated successfully", User: user.Summary()}, nil
}
