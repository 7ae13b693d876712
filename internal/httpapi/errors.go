// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/pkg/errutil"
)

// errorBody is the envelope for every failed request.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// apiError is a transport-level failure raised by handlers and middleware.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(code, message string) error {
	return &apiError{status: http.StatusBadRequest, code: code, message: message}
}

func unauthorized(code, message string) error {
	return &apiError{status: http.StatusUnauthorized, code: code, message: message}
}

func forbidden(message string) error {
	return &apiError{status: http.StatusForbidden, code: "AUTH_FORBIDDEN", message: message}
}

// statusFor maps an auth failure kind to an HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindAuth:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders err as the JSON error envelope. Internal failures are
// logged in full and reported without detail.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := describe(err)
		if status >= http.StatusInternalServerError {
			errutil.LogError(logger, "request failed", err)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Warn("write error response", "error", writeErr)
		}
	}
}

func describe(err error) (int, errorBody) {
	var api *apiError
	if errors.As(err, &api) {
		return api.status, errorBody{Message: api.message, Code: api.code}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, errorBody{Message: msg}
	}

	kind := auth.KindOf(err)
	status := statusFor(kind)
	if kind == auth.KindInternal {
		return status, errorBody{Message: "Internal server error", Code: "INTERNAL"}
	}

	body := errorBody{Message: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			body.Code = code
		}
		body.Message = oopsErr.Error()
	}
	return status, body
}
