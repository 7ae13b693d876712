// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"github.com/spf13/cobra"
)

// backendFactory builds the backend for the one-shot commands; tests replace it.
var backendFactory BackendFactory = newBackend

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens and one-time codes",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, fullConfig)
	if err != nil {
		return err
	}
	backend, err := backendFactory(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer backend.Close()

	result, err := backend.Auth.PurgeExpired(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Purged %d refresh token(s) and %d one-time code(s)\n", result.RefreshTokens, result.OTPs)
	return nil
}
