// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/eventdesk/pkg/errutil"
)

// KeyFunc derives the throttling key for a request.
type KeyFunc func(c echo.Context) string

// ByIPAndRoute keys on the client address and the matched route.
func ByIPAndRoute(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return ip + ":" + c.Request().Method + ":" + c.Path()
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Backend failures are logged and let the request through.
func Middleware(limiter Limiter, key KeyFunc, logger *slog.Logger) echo.MiddlewareFunc {
	if key == nil {
		key = ByIPAndRoute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, err := limiter.Allow(c.Request().Context(), key(c))
			if err != nil {
				errutil.LogError(logger, "rate limiter unavailable", err)
				return next(c)
			}
			if d.Allowed {
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				return next(c)
			}

			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			logger.Warn("request throttled", "route", c.Path(), "retry_after", secs)
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"success": false,
				"message": "Too many requests",
				"code":    "RATE_LIMITED",
			})
		}
	}
}
