// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("eventdesk/auth")

// dummyPasswordHash is verified against when a user doesn't exist so the
// response time doesn't reveal which emails are registered.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Deps are the collaborators a Service needs. Denylist and Logger are optional.
type Deps struct {
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	OTP           *OTPManager
	Hasher        PasswordHasher
	Signer        *TokenSigner
	Notifier      Notifier
	Denylist      Denylist
	Logger        *slog.Logger
}

// Config holds Service settings.
type Config struct {
	// ClientURL prefixes the password reset link.
	ClientURL string
	Signup    SignupPolicy
	Lockout   LockoutPolicy
}

// Service runs the authentication and session flows.
type Service struct {
	users     UserRepository
	refresh   RefreshTokenRepository
	otp       *OTPManager
	hasher    PasswordHasher
	signer    *TokenSigner
	notifier  Notifier
	denylist  Denylist
	logger    *slog.Logger
	clientURL string
	signup    SignupPolicy
	lockout   LockoutPolicy
	now       func() time.Time
}

// NewService creates a Service. All Deps except Denylist and Logger are required.
func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Errorf("users repository is required")
	case deps.RefreshTokens == nil:
		return nil, oops.Errorf("refresh token repository is required")
	case deps.OTP == nil:
		return nil, oops.Errorf("otp manager is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Signer == nil:
		return nil, oops.Errorf("token signer is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}

	denylist := deps.Denylist
	if denylist == nil {
		denylist = noDenylist{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Signup.SelfAssignable) == 0 {
		cfg.Signup = DefaultSignupPolicy
	}

	return &Service{
		users:     deps.Users,
		refresh:   deps.RefreshTokens,
		otp:       deps.OTP,
		hasher:    deps.Hasher,
		signer:    deps.Signer,
		notifier:  deps.Notifier,
		denylist:  denylist,
		logger:    logger,
		clientURL: strings.TrimRight(cfg.ClientURL, "/"),
		signup:    cfg.Signup,
		lockout:   cfg.Lockout,
		now:       time.Now,
	}, nil
}

// PurgeResult counts the rows removed by PurgeExpired.
type PurgeResult struct {
	RefreshTokens int64
	OTPs          int64
}

// PurgeExpired deletes expired refresh tokens and one-time codes.
func (s *Service) PurgeExpired(ctx context.Context) (result PurgeResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.purge_expired")
	defer func() { endSpan(span, err) }()

	result.RefreshTokens, err = s.refresh.DeleteExpired(ctx, s.now())
	if err != nil {
		return result, oops.Code("AUTH_PURGE_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	result.OTPs, err = s.otp.PurgeExpired(ctx)
	if err != nil {
		return result, err
	}
	s.logger.InfoContext(ctx, "purged expired credentials",
		"refresh_tokens", result.RefreshTokens, "otps", result.OTPs)
	return result, nil
}

// sendNotice delivers a courtesy email after a committed change. Failures
// are logged and never fail the operation.
func (s *Service) sendNotice(ctx context.Context, msg Email) {
	if err := s.notifier.SendEmail(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notice email not sent",
			"subject", msg.Subject, "error", err)
	}
}

func userNotFound() error {
	return fail(KindNotFound, "AUTH_USER_NOT_FOUND").Errorf("User not found")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("auth.error_kind", string(KindOf(err))))
	}
	span.End()
}
