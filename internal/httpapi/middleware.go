// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package httpapi

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/observability"
)

// requireAuth verifies the bearer access token and stores the caller's
// principal in the request context.
func requireAuth(svc AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return unauthorized("AUTH_TOKEN_MISSING", "Authorization token missing")
			}

			req := c.Request()
			p, err := svc.Authenticate(req.Context(), strings.TrimSpace(token))
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}

// requireRole admits only callers holding one of roles. It must run after
// requireAuth.
func requireRole(roles ...auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := auth.PrincipalFrom(c.Request().Context())
			if !ok {
				return unauthorized("AUTH_TOKEN_MISSING", "Authorization token missing")
			}
			for _, r := range roles {
				if p.Role == r {
					return next(c)
				}
			}
			return forbidden("Insufficient role")
		}
	}
}

// observe logs each request and records its metrics. Errors are rendered
// here so the final status is known.
func observe(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req, res := c.Request(), c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if metrics != nil {
				metrics.ObserveRequest(route, req.Method, res.Status, elapsed)
			}
			logger.InfoContext(req.Context(), "http request",
				"method", req.Method,
				"route", route,
				"status", res.Status,
				"duration_ms", elapsed.Milliseconds(),
				"remote_ip", c.RealIP(),
			)
			return nil
		}
	}
}
