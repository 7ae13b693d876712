// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/eventdesk/eventdesk/internal/config"
	"github.com/eventdesk/eventdesk/internal/httpapi"
	"github.com/eventdesk/eventdesk/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the public JSON API and, when metrics.addr is set, the
metrics and health probe server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, fullConfig)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, logger, cmd, nil)
		},
	}
}

// runServeWithDeps runs the API until a signal arrives, ctx is cancelled or
// a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendFactory == nil {
		deps.BackendFactory = newBackend
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(cfg httpapi.Config, d httpapi.Deps) (APIServer, error) {
			return httpapi.NewServer(cfg, d)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, logger *slog.Logger, checks ...observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, logger, checks...)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting eventdesk",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"mail_driver", cfg.Mail.Driver,
		"redis", cfg.Redis.Enabled(),
	)

	// The readiness probe is registered before the backend exists and
	// reports not ready until it does.
	var ready atomic.Pointer[Backend]
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, logger, func() bool {
			b := ready.Load()
			return b != nil && b.Ready()
		})
		metrics = obsServer.Metrics()
	}

	backend, err := deps.BackendFactory(ctx, cfg, logger, metrics)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "wire backend").Wrap(err)
	}
	defer backend.Close()
	ready.Store(backend)

	api, err := deps.APIServerFactory(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, httpapi.Deps{
		Auth:    backend.Auth,
		Limiter: backend.Limiter,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("operation", "create api server").Wrap(err)
	}

	apiErrCh, err := api.Start()
	if err != nil {
		return oops.Code("SERVE_START_FAILED").With("server", "api").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, logger, apiErrCh, "api")

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := api.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return oops.Code("SERVE_START_FAILED").With("server", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, logger, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("EventDesk API started on", api.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
