// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

// Package auth implements account authentication and session lifecycle for EventDesk.
//
// # Flows
//
// Service coordinates the flows:
//   - Signup - registers a user with a validated email, phone and password
//   - SigninWithPassword / VerifyLoginOTP - two-step login; tokens are issued
//     only after the emailed one-time code is consumed
//   - RequestPasswordReset / ResetPassword - signed reset links
//   - RefreshAccessToken - rotates the single refresh token a user holds
//   - Logout - drops every refresh token of the user
//   - ChangePassword / ChangeUserRole - account maintenance
//
// # Errors
//
// Failures are samber/oops errors with a code and a kind tag. KindOf maps
// an error to one of the Kind constants; untagged errors are internal.
//
// # Storage
//
// Repositories are interfaces. The postgres subpackage implements them on
// pgx; the redis subpackage implements Denylist.
package auth
