// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/config"
	"github.com/calmpulse/calmpulse/internal/logging"
	"github.com/calmpulse/calmpulse/internal/store"
)

// NewPurgeTokensCmd creates the purge-tokens subcommand.
func NewPurgeTokensCmd() *cobra.Command {
	var grace string

	cmd := &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired refresh token records once",
		Long: `Delete refresh token records that expired more than the grace period
ago. serve does this periodically; this runs a single pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if grace != "" {
				cfg.Auth.PurgeGrace, err = config.ParseDuration(grace)
				if err != nil {
					return err
				}
			}

			logger, err := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}

			backend, err := store.Open(cmd.Context(), cfg.Database.URL, store.Options{
				ConnectTimeout: cfg.Database.ConnectTimeout,
				Logger:         logger,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = backend.Close() }()

			ledger, err := auth.NewRefreshLedger(backend.Refresh, backend.Tx)
			if err != nil {
				return err
			}
			n, err := ledger.Purge(cmd.Context(), cfg.Auth.PurgeGrace)
			if err != nil {
				return fmt.Errorf("failed to purge refresh records: %w", err)
			}
			cmd.Printf("Purged %d expired refresh record(s)\n", n)
			return nil
		},
	}

	cmd.Flags().String("database-url", "", "database URL, postgres://... or sqlite://path")
	cmd.Flags().StringVar(&grace, "grace", "", "keep records this long past expiry, e.g. 24h or 7d (default from auth.purge_grace)")
	return cmd
}
