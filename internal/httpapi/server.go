// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package httpapi exposes the auth service as a JSON API on echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/observability"
	"github.com/eventdesk/eventdesk/internal/ratelimit"
)

// Config configures the API listener.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	BodyLimit      string
	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For header is
	// believed. Empty means the client address is the TCP peer.
	TrustedProxies []string
}

// Deps are the collaborators of the API server. Limiter and Metrics are
// optional.
type Deps struct {
	Auth    AuthService
	Limiter ratelimit.Limiter
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server serves the public API.
type Server struct {
	cfg      Config
	echo     *echo.Echo
	logger   *slog.Logger
	listener net.Listener
	http     *http.Server
	running  atomic.Bool
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("auth service is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "64K"
	}

	extractIP, err := ipExtractor(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	e.Use(observe(deps.Logger, deps.Metrics))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	routes(e, deps)
	return &Server{cfg: cfg, echo: e, logger: deps.Logger}, nil
}

// ipExtractor picks how c.RealIP resolves the client. Forwarding headers are
// ignored unless the peer is inside one of the trusted ranges.
func ipExtractor(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, oops.Code("HTTP_CONFIG_INVALID").With("trusted_proxy", cidr).Wrap(err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func routes(e *echo.Echo, deps Deps) {
	h := &handlers{svc: deps.Auth, metrics: deps.Metrics}
	authed := requireAuth(deps.Auth)

	throttle := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if deps.Limiter != nil {
		throttle = ratelimit.Middleware(deps.Limiter, ratelimit.ByIPAndRoute, deps.Logger)
	}

	a := e.Group("/api/auth")
	a.POST("/signup", h.signup)
	a.POST("/signin", h.signin, throttle)
	a.POST("/login/verify", h.verifyLogin, throttle)
	a.POST("/password/reset", h.requestReset, throttle)
	a.POST("/password/verify", h.verifyReset, throttle)
	a.POST("/token/refresh", h.refresh, throttle)
	a.POST("/logout", h.logout, authed)

	u := e.Group("/api/users", authed)
	u.PUT("/profile/:id/password", h.changePassword)
	u.PATCH("/profile/role", h.changeRole, requireRole(auth.RoleSuperAdmin))
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens and serves in the background. The returned channel reports
// serve errors and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("api server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.http = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests and shuts the listener.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
