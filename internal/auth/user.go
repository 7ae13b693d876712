// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the authorization level of a user.
type Role string

// Known roles.
const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleOrganizer   Role = "ORGANIZER"
	RoleParticipant Role = "PARTICIPANT"
)

// ParseRole returns the Role named by s (case-insensitive) and whether it is known.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	case RoleOrganizer:
		return RoleOrganizer, true
	case RoleParticipant:
		return RoleParticipant, true
	default:
		return "", false
	}
}

// Password policy.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// emailRegex is intentionally loose: local@domain.tld with no whitespace.
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// phoneRegex accepts +92XXXXXXXXXX or 03XXXXXXXXX.
	phoneRegex = regexp.MustCompile(`^(\+92\d{10}|03\d{9})$`)
)

// User is an account that can sign in.
type User struct {
	ID             ulid.ULID
	FullName       string
	Email          string
	Phone          string
	PasswordHash   string
	Role           Role
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser creates a validated User. Email is normalized to lower case.
func NewUser(fullName, email, phone, passwordHash string, role Role) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fail(KindValidation, "AUTH_INVALID_NAME").Errorf("Full name is required")
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	if _, ok := ParseRole(string(role)); !ok {
		return nil, fail(KindValidation, "AUTH_INVALID_ROLE").With("role", role).Errorf("Invalid role")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		FullName:     fullName,
		Email:        email,
		Phone:        strings.TrimSpace(phone),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Summary is the public view of a user returned after login.
type Summary struct {
	ID       ulid.ULID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
	Role     Role      `json:"role"`
}

// Summary returns the public view of u.
func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the syntax of an email address.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fail(KindValidation, "AUTH_INVALID_EMAIL").Errorf("Invalid email format")
	}
	return nil
}

// ValidatePhone accepts +92XXXXXXXXXX or 03XXXXXXXXX.
func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(strings.TrimSpace(phone)) {
		return fail(KindValidation, "AUTH_INVALID_PHONE").
			Errorf("Phone number must be in format +92XXXXXXXXXX or 03XXXXXXXXX")
	}
	return nil
}

// ValidatePassword enforces the password strength policy:
// MinPasswordLength to MaxPasswordLength characters with at least one letter and one digit.
func ValidatePassword(password string) error {
	if n := utf8.RuneCountInString(password); n < MinPasswordLength || n > MaxPasswordLength {
		return weakPassword()
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return weakPassword()
	}
	return nil
}

func weakPassword() error {
	return fail(KindValidation, "AUTH_WEAK_PASSWORD").
		With("min", MinPasswordLength).
		Errorf("Password must be at least %d characters long and contain letters and numbers", MinPasswordLength)
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicate if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateRole replaces the role for a user.
	UpdateRole(ctx context.Context, id ulid.ULID, role Role) error

	// RecordLoginFailure atomically increments the failure counter and, once
	// threshold is reached, sets locked_until to lockUntil. Returns the new count.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error)

	// ResetLoginFailures clears the failure counter and lockout.
	ResetLoginFailures(ctx context.Context, id ulid.ULID) error
}
