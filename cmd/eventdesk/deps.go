// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/config"
	"github.com/eventdesk/eventdesk/internal/httpapi"
	"github.com/eventdesk/eventdesk/internal/notify"
	"github.com/eventdesk/eventdesk/internal/observability"
	"github.com/eventdesk/eventdesk/internal/ratelimit"
)

// AuthService is the auth surface the commands drive.
// *auth.Service satisfies it.
type AuthService interface {
	httpapi.AuthService
	PurgeExpired(ctx context.Context) (auth.PurgeResult, error)
	VerifyCredentials(ctx context.Context, email, password string) (ulid.ULID, error)
}

// Backend is everything behind the HTTP layer: the auth service and the
// connections it holds.
type Backend struct {
	Auth    AuthService
	Limiter ratelimit.Limiter
	// Ready reports whether the database (and Redis, if configured) answer.
	Ready observability.ReadinessChecker
	// Close releases pools, clients and publishers.
	Close func()
}

// BackendFactory builds a Backend. metrics may be nil.
type BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Backend, error)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory wires the auth service.
	// Default: newBackend
	BackendFactory BackendFactory

	// APIServerFactory creates the public API server.
	// Default: httpapi.NewServer
	APIServerFactory func(cfg httpapi.Config, deps httpapi.Deps) (APIServer, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, logger *slog.Logger, checks ...observability.ReadinessChecker) ObservabilityServer
}

// MailerDeps contains injectable dependencies for the mailer command.
type MailerDeps struct {
	// ConsumerFactory creates the queue consumer.
	// Default: notify.NewConsumer with notify.DialAMQP
	ConsumerFactory func(cfg notify.ConsumerConfig, sink auth.Notifier, logger *slog.Logger) (Consumer, error)
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Consumer wraps the methods used from notify.Consumer.
type Consumer interface {
	Run(ctx context.Context) error
}
