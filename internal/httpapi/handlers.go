// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/eventdesk/eventdesk/internal/auth"
	"github.com/eventdesk/eventdesk/internal/observability"
)

// AuthService is the set of auth operations exposed over HTTP.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error)
	SigninWithPassword(ctx context.Context, email, password string) (*auth.SigninResult, error)
	VerifyLoginOTP(ctx context.Context, email, code string) (*auth.LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) (*auth.MessageResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*auth.MessageResult, error)
	RefreshAccessToken(ctx context.Context, token string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, userID ulid.ULID) (*auth.LogoutResult, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, current, newPassword string) (*auth.MessageResult, error)
	ChangeUserRole(ctx context.Context, actor auth.Principal, target ulid.ULID, role string) (*auth.RoleChangeResult, error)
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyLoginRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type verifyResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type changeRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type handlers struct {
	svc     AuthService
	metrics *observability.Metrics
}

// record counts the outcome of op and passes err through.
func (h *handlers) record(op string, err error) error {
	if h.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(auth.KindOf(err))
		}
		h.metrics.ObserveAuth(op, outcome)
	}
	return err
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return badRequest("INVALID_BODY", "Invalid request body")
	}
	return nil
}

func (h *handlers) signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Signup(c.Request().Context(), auth.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err := h.record("signup", err); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *handlers) signin(c echo.Context) error {
	var req signinRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.SigninWithPassword(c.Request().Context(), req.Email, req.Password)
	if err := h.record("signin", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) verifyLogin(c echo.Context) error {
	var req verifyLoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.VerifyLoginOTP(c.Request().Context(), req.Email, req.OTP)
	if err := h.record("verify_login", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) requestReset(c echo.Context) error {
	var req resetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email)
	if err := h.record("request_reset", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) verifyReset(c echo.Context) error {
	var req verifyResetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.NewPassword)
	if err := h.record("reset_password", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.RefreshAccessToken(c.Request().Context(), req.RefreshToken)
	if err := h.record("refresh", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) logout(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := auth.PrincipalFrom(ctx)
	res, err := h.svc.Logout(ctx, p.UserID)
	if err := h.record("logout", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) changePassword(c echo.Context) error {
	target, err := ulid.ParseStrict(c.Param("id"))
	if err != nil {
		return badRequest("INVALID_USER_ID", "Invalid user id")
	}
	ctx := c.Request().Context()
	if p, _ := auth.PrincipalFrom(ctx); p.UserID != target {
		return forbidden("You can only change your own password")
	}

	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.ChangePassword(ctx, target, req.CurrentPassword, req.NewPassword)
	if err := h.record("change_password", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) changeRole(c echo.Context) error {
	var req changeRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	target, err := ulid.ParseStrict(req.UserID)
	if err != nil {
		return badRequest("INVALID_USER_ID", "Invalid user id")
	}
	ctx := c.Request().Context()
	actor, _ := auth.PrincipalFrom(ctx)
	res, err := h.svc.ChangeUserRole(ctx, actor, target, req.Role)
	if err := h.record("change_role", err); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
