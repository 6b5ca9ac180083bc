// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/auth/postgres"
	"github.com/calmpulse/calmpulse/pkg/errutil"
)

var accountCols = []string{"id", "email", "display_name", "password_hash", "created_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestAccountRepository_Create(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newAccount := func() *auth.Account {
		return &auth.Account{Email: "a@x.com", DisplayName: "alice", PasswordHash: "hash", CreatedAt: created}
	}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantIs    error
		wantCode  string
	}{
		{
			name: "assigns store id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WithArgs("a@x.com", "alice", "hash", created).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
			},
			wantID: 7,
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"})
			},
			wantIs:   auth.ErrEmailTaken,
			wantCode: "ACCOUNT_EMAIL_TAKEN",
		},
		{
			name: "duplicate display name",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_display_name_key"})
			},
			wantIs:   auth.ErrDisplayNameTaken,
			wantCode: "ACCOUNT_DISPLAY_NAME_TAKEN",
		},
		{
			name: "other unique violation is not a conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_pkey"})
			},
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			account := newAccount()
			err := postgres.NewAccountRepository(mock).Create(context.Background(), account)

			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, account.ID)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			} else {
				assert.NotErrorIs(t, err, auth.ErrEmailTaken)
				assert.NotErrorIs(t, err, auth.ErrDisplayNameTaken)
			}
		})
	}
}

func TestAccountRepository_GetByID(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, email, display_name, password_hash, created_at FROM accounts WHERE id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(7), "a@x.com", "alice", "hash", created))

		account, err := postgres.NewAccountRepository(mock).GetByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), account.ID)
		assert.Equal(t, "alice", account.DisplayName)
		assert.True(t, created.Equal(account.CreatedAt))
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM accounts WHERE id`).
			WithArgs(int64(7)).
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewAccountRepository(mock).GetByID(context.Background(), 7)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM accounts WHERE id`).
			WillReturnError(errors.New("connection reset"))

		_, err := postgres.NewAccountRepository(mock).GetByID(context.Background(), 7)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "ACCOUNT_GET_BY_ID_FAILED")
	})
}

func TestAccountRepository_Lookups(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("by email", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
			WithArgs("a@x.com").
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(7), "a@x.com", "alice", "hash", created))

		account, err := postgres.NewAccountRepository(mock).GetByEmail(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, int64(7), account.ID)
	})

	t.Run("by email missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM accounts WHERE email = \$1`).
			WithArgs("A@x.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewAccountRepository(mock).GetByEmail(context.Background(), "A@x.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("by display name", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM accounts WHERE display_name = \$1`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(accountCols).AddRow(int64(7), "a@x.com", "alice", "hash", created))

		account, err := postgres.NewAccountRepository(mock).GetByDisplayName(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", account.Email)
	})
}

func TestAccountRepository_Update(t *testing.T) {
	account := &auth.Account{ID: 7, Email: "b@x.com", DisplayName: "bob", PasswordHash: "hash2"}

	t.Run("updates row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts SET email = \$2, display_name = \$3, password_hash = \$4`).
			WithArgs(int64(7), "b@x.com", "bob", "hash2").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, postgres.NewAccountRepository(mock).Update(context.Background(), account))
	})

	t.Run("missing row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := postgres.NewAccountRepository(mock).Update(context.Background(), account)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("email taken by another account", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE accounts`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"})

		err := postgres.NewAccountRepository(mock).Update(context.Background(), account)
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})
}

func TestAccountRepository_Delete(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantIs    error
		wantErr   bool
	}{
		{
			name: "deletes row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).
					WithArgs(int64(7)).
					WillReturnResult(pgxmock.NewResult("DELETE", 1))
			},
		},
		{
			name: "missing row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM accounts`).
					WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
			wantIs:  auth.ErrNotFound,
			wantErr: true,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`DELETE FROM accounts`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			err := postgres.NewAccountRepository(mock).Delete(context.Background(), 7)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}
