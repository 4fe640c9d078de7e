// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opentrusty/provisioner/internal/config"
	"github.com/opentrusty/provisioner/internal/store/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
	Long:  `Commands for applying and rolling back the PostgreSQL schema.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(db *postgres.DB) error {
			if err := db.MigrateUp(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return reportVersion(db)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}
		return withDatabase(cmd, func(db *postgres.DB) error {
			if err := db.MigrateDown(steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			return reportVersion(db)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, reportVersion)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func withDatabase(cmd *cobra.Command, fn func(*postgres.DB) error) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return errors.New("migrations require DB_DRIVER=postgres")
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func reportVersion(db *postgres.DB) error {
	version, dirty, err := db.MigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("schema version", "version", version, "dirty", dirty)
	return nil
}
