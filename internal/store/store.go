// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

// Package store opens the configured database, wires the auth repositories
// for its dialect and manages schema migrations.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/auth/postgres"
	"github.com/calmpulse/calmpulse/internal/auth/sqlite"
)

// Dialect identifies a supported SQL backend.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf detects the dialect from the URL scheme.
func DialectOf(databaseURL string) (Dialect, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", oops.Code("UNSUPPORTED_DATABASE_URL").Errorf("database URL has no scheme")
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql", "pgx5":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", oops.Code("UNSUPPORTED_DATABASE_URL").
			With("scheme", scheme).
			Errorf("unsupported database scheme %q", scheme)
	}
}

// sqlitePath strips the scheme from a sqlite:// URL.
func sqlitePath(databaseURL string) string {
	_, rest, _ := strings.Cut(databaseURL, "://")
	return rest
}

// Backend bundles the auth repositories of one open database.
type Backend struct {
	Dialect  Dialect
	Accounts auth.AccountRepository
	Refresh  auth.RefreshRepository
	Tx       auth.Transactor

	url   string
	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// Options configures Open.
type Options struct {
	// ConnectTimeout bounds the total time spent retrying the initial
	// connection. Zero means a single attempt.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Open connects to databaseURL, retrying with exponential backoff until
// opts.ConnectTimeout elapses.
func Open(ctx context.Context, databaseURL string, opts Options) (*Backend, error) {
	dialect, err := DialectOf(databaseURL)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoff := retry.NewExponential(250 * time.Millisecond)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxDuration(opts.ConnectTimeout, backoff)

	var backend *Backend
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, openErr := open(ctx, dialect, databaseURL)
		if openErr != nil {
			logger.WarnContext(ctx, "database not ready",
				"dialect", string(dialect),
				"attempt", attempt,
				"error", openErr)
			return retry.RetryableError(openErr)
		}
		backend = b
		return nil
	})
	if err != nil {
		return nil, oops.Code("DATABASE_CONNECT_FAILED").
			With("dialect", string(dialect)).
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected", "dialect", string(dialect), "attempts", attempt)
	return backend, nil
}

func open(ctx context.Context, dialect Dialect, databaseURL string) (*Backend, error) {
	switch dialect {
	case DialectPostgres:
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, oops.Code("POSTGRES_POOL_FAILED").Wrap(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, oops.Code("POSTGRES_PING_FAILED").Wrap(err)
		}
		return &Backend{
			Dialect:  dialect,
			Accounts: postgres.NewAccountRepository(pool),
			Refresh:  postgres.NewRefreshRepository(pool),
			Tx:       postgres.NewTransactor(pool),
			url:      databaseURL,
			pool:     pool,
		}, nil
	default:
		db, err := sqlite.Open(ctx, sqlitePath(databaseURL))
		if err != nil {
			return nil, err
		}
		return &Backend{
			Dialect:  dialect,
			Accounts: sqlite.NewAccountRepository(db),
			Refresh:  sqlite.NewRefreshRepository(db),
			Tx:       sqlite.NewTransactor(db),
			url:      databaseURL,
			sqlDB:    db,
		}, nil
	}
}

// Migrator returns a migrator for the backend's database. For SQLite it
// reuses the open handle so in-memory databases migrate in place.
func (b *Backend) Migrator() (*Migrator, error) {
	if b.sqlDB != nil {
		return NewSQLiteMigrator(b.sqlDB)
	}
	return NewMigrator(b.url)
}

// Migrate applies all pending migrations.
func (b *Backend) Migrate() (err error) {
	m, err := b.Migrator()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}

// Ping checks that the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.pool != nil {
		if err := b.pool.Ping(ctx); err != nil {
			return oops.Code("DATABASE_PING_FAILED").Wrap(err)
		}
		return nil
	}
	if err := b.sqlDB.PingContext(ctx); err != nil {
		return oops.Code("DATABASE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
		return nil
	}
	if b.sqlDB != nil {
		if err := b.sqlDB.Close(); err != nil {
			return oops.Code("DATABASE_CLOSE_FAILED").Wrap(err)
		}
	}
	return nil
}
