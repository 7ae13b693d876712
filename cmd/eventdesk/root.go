// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/eventdesk/eventdesk/internal/config"
	"github.com/eventdesk/eventdesk/internal/logging"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the EventDesk CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventdesk",
		Short: "EventDesk - event management backend",
		Long: `EventDesk serves account signup, OTP-verified login, password reset
and session management for the event management platform.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (missing = ignored)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewMailerCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewAdminCmd())

	return cmd
}

// configCheck validates the parts of the configuration a command needs.
type configCheck func(cfg *config.Config) error

// fullConfig is the check for commands that run the auth service.
func fullConfig(cfg *config.Config) error {
	return cfg.Validate()
}

// databaseOnly is the check for commands that only touch the schema.
func databaseOnly(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database url is required")
	}
	return nil
}

// loadConfig reads configuration for cmd, applies check, then installs the
// default logger described by it.
func loadConfig(cmd *cobra.Command, check configCheck) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{
		File:   configFile,
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := check(cfg); err != nil {
		return nil, nil, err
	}

	logger := logging.SetDefault(logging.Options{
		Service: "eventdesk",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}
