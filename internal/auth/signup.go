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

// SignupInput is a registration request.
type SignupInput struct {
	FullName string
	Email    string
	Phone    string
	Password string
	Role     string
}

// SignupResult is returned by Signup.
type SignupResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	UserID  ulid.ULID `json:"userId"`
	Role    Role      `json:"role"`
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, in SignupInput) (result *SignupResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer func() { endSpan(span, err) }()

	email := NormalizeEmail(in.Email)
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fail(KindValidation, "AUTH_INVALID_NAME").Errorf("Full name is required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePhone(in.Phone); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	role, honored := s.signup.Resolve(in.Role)
	if !honored {
		s.logger.WarnContext(ctx, "requested signup role refused",
			"requested", in.Role, "granted", string(role))
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.FullName, email, in.Phone, hash, role)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The unique index catches a concurrent signup for the same email.
		if errors.Is(err, ErrDuplicate) {
			return nil, emailTaken()
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "role", string(role))
	return &SignupResult{
		Success: true,
		Message: "User registered successfully",
		UserID:  user.ID,
		Role:    user.Role,
	}, nil
}

func emailTaken() error {
	return fail(KindConflict, "AUTH_EMAIL_TAKEN").Errorf("Email already registered")
}
