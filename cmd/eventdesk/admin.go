// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/eventdesk/eventdesk/internal/auth"
)

// defaultAdminPasswordEnv names the variable holding the new admin's password.
//
//nolint:gosec // G101: environment variable name, not a credential.
const defaultAdminPasswordEnv = "ADMIN_PASSWORD"

type adminInput struct {
	fullName    string
	email       string
	phone       string
	passwordEnv string
}

// NewAdminCmd creates the admin subcommand.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator account tasks",
	}

	in := &adminInput{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a SUPER_ADMIN account",
		Long: `Register an account and grant it SUPER_ADMIN. Signup never grants
SUPER_ADMIN, so this is how the first administrator is created. If the
email is already registered and the password matches, that account is
promoted instead. The password is read from the environment, never from
a flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdminCreate(cmd, in)
		},
	}
	create.Flags().StringVar(&in.fullName, "name", "", "full name")
	create.Flags().StringVar(&in.email, "email", "", "email address")
	create.Flags().StringVar(&in.phone, "phone", "", "phone number (+92XXXXXXXXXX or 03XXXXXXXXX)")
	create.Flags().StringVar(&in.passwordEnv, "password-env", defaultAdminPasswordEnv, "environment variable holding the password")
	_ = create.MarkFlagRequired("name")  //nolint:errcheck // flag defined above
	_ = create.MarkFlagRequired("email") //nolint:errcheck // flag defined above
	_ = create.MarkFlagRequired("phone") //nolint:errcheck // flag defined above
	cmd.AddCommand(create)

	return cmd
}

func runAdminCreate(cmd *cobra.Command, in *adminInput) error {
	password := os.Getenv(in.passwordEnv)
	if password == "" {
		return oops.Code("ADMIN_PASSWORD_MISSING").
			With("env", in.passwordEnv).
			Errorf("%s must hold the admin password", in.passwordEnv)
	}

	cfg, logger, err := loadConfig(cmd, fullConfig)
	if err != nil {
		return err
	}
	backend, err := backendFactory(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := cmd.Context()
	verb := "Created"
	var userID ulid.ULID
	created, err := backend.Auth.Signup(ctx, auth.SignupInput{
		FullName: in.fullName,
		Email:    in.email,
		Phone:    in.phone,
		Password: password,
	})
	switch {
	case err == nil:
		userID = created.UserID
	case auth.KindOf(err) == auth.KindConflict:
		// Re-running against an existing account promotes it once the
		// password proves it is the intended one.
		userID, err = backend.Auth.VerifyCredentials(ctx, in.email, password)
		if err != nil {
			return oops.Code("ADMIN_EXISTING_ACCOUNT").
				With("email", in.email).
				Hint("the email is registered; pass that account's password to promote it").
				Wrap(err)
		}
		verb = "Promoted"
	default:
		return err
	}

	if _, err := backend.Auth.ChangeUserRole(ctx, auth.SystemPrincipal, userID, string(auth.RoleSuperAdmin)); err != nil {
		return oops.With("user_id", userID.String()).
			Hint("the account exists; re-run admin create with the same email and password to retry").
			Wrap(err)
	}

	cmd.Printf("%s SUPER_ADMIN %s (%s)\n", verb, in.email, userID)
	return nil
}
