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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/opentrusty/provisioner/internal/config"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Invitation-driven account provisioning for multi-tenant companies",
	Long: `provisioner issues invitations, walks them through email confirmation and
administrator approval, and provisions company memberships on first sign-in.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logCloser = logger.InitLogger(logger.Config{
			Level:          cfg.Observability.LogLevel,
			Format:         cfg.Observability.LogFormat,
			ServiceName:    cfg.Observability.ServiceName,
			File:           cfg.Observability.LogFile,
			FileMaxSizeMB:  cfg.Observability.LogFileMaxSizeMB,
			FileMaxBackups: cfg.Observability.LogFileMaxBackups,
			FileMaxAgeDays: cfg.Observability.LogFileMaxAgeDays,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", logger.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
