// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/calmpulse/calmpulse/internal/config"
	"github.com/calmpulse/calmpulse/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the CalmPulse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calmpulse",
		Short: "CalmPulse - account and session service",
		Long: `CalmPulse serves account registration, login and session
management for the CalmPulse wellness app, backed by PostgreSQL or SQLite.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/calmpulse/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeTokensCmd())

	return cmd
}

// loadConfig layers the config file, the environment and the flags of cmd.
// Without --config the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}
