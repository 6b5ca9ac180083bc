// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/auth/sqlite"
	"github.com/calmpulse/calmpulse/internal/store"
	"github.com/calmpulse/calmpulse/pkg/errutil"
)

// openTestDB returns a migrated database in a temporary directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "calmpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := store.NewSQLiteMigrator(db)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())
	return db
}

func createAccount(t *testing.T, db *sql.DB, name string) *auth.Account {
	t.Helper()
	account := &auth.Account{
		Email:        name + "@example.com",
		DisplayName:  name,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, sqlite.NewAccountRepository(db).Create(context.Background(), account))
	return account
}

func TestOpen(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := sqlite.Open(context.Background(), "  ")
		errutil.AssertErrorCode(t, err, "SQLITE_PATH_REQUIRED")
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := sqlite.Open(context.Background(), ":memory:")
		require.NoError(t, err)
		defer db.Close()

		var fk int
		require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
		assert.Equal(t, 1, fk, "foreign keys must be enforced")
	})

	t.Run("unwritable directory", func(t *testing.T) {
		_, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
		errutil.AssertErrorCode(t, err, "SQLITE_PING_FAILED")
	})
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	tx := sqlite.NewTransactor(db)
	accounts := sqlite.NewAccountRepository(db)

	t.Run("commits on success", func(t *testing.T) {
		var id int64
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			a := &auth.Account{Email: "commit@example.com", DisplayName: "commit", PasswordHash: "h", CreatedAt: time.Now()}
			if err := accounts.Create(ctx, a); err != nil {
				return err
			}
			id = a.ID
			return nil
		})
		require.NoError(t, err)

		_, err = accounts.GetByID(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			a := &auth.Account{Email: "rollback@example.com", DisplayName: "rollback", PasswordHash: "h", CreatedAt: time.Now()}
			if err := accounts.Create(ctx, a); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		_, err = accounts.GetByEmail(ctx, "rollback@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			return tx.InTransaction(ctx, func(ctx context.Context) error {
				return accounts.Create(ctx, &auth.Account{
					Email: "nested@example.com", DisplayName: "nested", PasswordHash: "h", CreatedAt: time.Now(),
				})
			})
		})
		require.NoError(t, err)
	})
}
