// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/calmpulse/calmpulse/internal/api"
	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/config"
	"github.com/calmpulse/calmpulse/internal/logging"
	"github.com/calmpulse/calmpulse/internal/observability"
	"github.com/calmpulse/calmpulse/internal/store"
	"github.com/calmpulse/calmpulse/internal/telemetry"
)

// serviceName labels logs, spans and the schema ids.
const serviceName = "calmpulse"

// serveOptions holds serve flags that are not configuration keys.
type serveOptions struct {
	migrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server, the metrics and health endpoints and the
refresh token janitor. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, opts, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, opts *serveOptions, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if opts == nil {
		opts = &serveOptions{}
	}

	if deps.BackendOpener == nil {
		deps.BackendOpener = store.Open
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) HTTPServer {
			return api.NewServer(addr, handler, logger)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if deps.TracingSetup == nil {
		deps.TracingSetup = telemetry.Setup
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	shutdownTracing, err := deps.TracingSetup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	logger.Info("starting calmpulse",
		"addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)

	backend, err := deps.BackendOpener(ctx, cfg.Database.URL, store.Options{
		ConnectTimeout: cfg.Database.ConnectTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("error closing database", "error", closeErr)
		}
	}()

	if opts.migrate {
		if err := backend.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The observability server comes first so its registry backs the
	// service and HTTP metrics.
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, backend.Ping, logger)
		metrics = obsServer.Metrics()
	}

	router, janitor, err := buildService(cfg, backend, metrics, logger)
	if err != nil {
		return err
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, router, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer stopCancel()
			if stopErr := apiServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop api server during cleanup", "error", stopErr)
			}
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	if janitor != nil {
		janitor.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("CalmPulse started")
	logger.Info("calmpulse ready", "addr", apiServer.Addr(), "dialect", string(backend.Dialect))

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	if janitor != nil {
		janitor.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildService wires the auth core and the HTTP router over backend.
// metrics may be nil. The janitor is nil when purging is disabled.
func buildService(cfg *config.Config, backend *store.Backend, metrics *observability.Metrics, logger *slog.Logger) (*gin.Engine, *auth.Janitor, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.HasherParams())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create password hasher: %w", err)
	}
	codec, err := auth.NewTokenCodec(cfg.TokenConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	ledger, err := auth.NewRefreshLedger(backend.Refresh, backend.Tx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create refresh ledger: %w", err)
	}

	svcOpts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithReplayLineageRevocation(cfg.Auth.RevokeFamilyOnReplay),
	}
	routerCfg := api.Config{
		Logger:      logger,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		ServiceName: cfg.Telemetry.ServiceName,
	}
	janitorOpts := []auth.JanitorOption{auth.WithJanitorLogger(logger)}
	if metrics != nil {
		svcOpts = append(svcOpts, auth.WithRecorder(metrics))
		routerCfg.Observer = metrics
		janitorOpts = append(janitorOpts, auth.WithPurgeRecorder(metrics))
	}

	svc, err := auth.NewService(backend.Accounts, ledger, backend.Tx, hasher, codec, svcOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	gate, err := auth.NewGate(codec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gate: %w", err)
	}
	routerCfg.Service = svc
	routerCfg.Authorizer = gate

	router, err := api.NewRouter(routerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create router: %w", err)
	}

	var janitor *auth.Janitor
	if cfg.Auth.PurgeInterval > 0 {
		janitor, err = auth.NewJanitor(auth.JanitorConfig{
			Interval: cfg.Auth.PurgeInterval,
			Grace:    cfg.Auth.PurgeGrace,
		}, ledger, janitorOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create refresh janitor: %w", err)
		}
	}
	return router, janitor, nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
