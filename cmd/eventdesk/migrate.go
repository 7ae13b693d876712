// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/eventdesk/eventdesk/internal/store"
)

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// migratorFactory opens a migrator; tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL schema migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				return runMigrateDown(cmd, m, all)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration, dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (clears a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(*cobra.Command, Migrator) error) error {
	cfg, logger, err := loadConfig(cmd, databaseOnly)
	if err != nil {
		return err
	}
	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func runMigrateDown(cmd *cobra.Command, m Migrator, all bool) error {
	if all {
		if err := m.Down(); err != nil {
			return err
		}
		cmd.Println("Rolled back all migrations")
		return nil
	}
	if err := m.Steps(-1); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Rolled back one migration (version %d)\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", version, state)
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Println("Pending migrations:")
	for _, v := range pending {
		name, err := store.MigrationName(v)
		if err != nil {
			return err
		}
		if name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}

// parseForceVersion parses the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return version, nil
}
