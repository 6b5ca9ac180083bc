// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/calmpulse/calmpulse/internal/observability"
	"github.com/calmpulse/calmpulse/internal/store"
	"github.com/calmpulse/calmpulse/internal/telemetry"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendOpener connects to the configured database.
	// Default: store.Open
	BackendOpener func(ctx context.Context, url string, opts store.Options) (*store.Backend, error)

	// APIServerFactory creates the public API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, logger *slog.Logger) HTTPServer

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// TracingSetup installs the global tracer provider.
	// Default: telemetry.Setup
	TracingSetup func(ctx context.Context, cfg telemetry.Config) (telemetry.ShutdownFunc, error)
}

// HTTPServer interface wraps the methods used from api.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	HTTPServer
	Metrics() *observability.Metrics
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Dialect() store.Dialect
	Close() error
}

// migratorFactory creates the migrator used by the migrate subcommands.
var migratorFactory = func(url string) (Migrator, error) {
	m, err := store.NewMigrator(url)
	if err != nil {
		return nil, err
	}
	return m, nil
}
