// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/internal/auth"
)

const accountColumns = `id, email, display_name, password_hash, created_at`

// AccountRepository implements auth.AccountRepository over SQLite.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the account and sets its store-assigned ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO accounts (email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, account.Email, account.DisplayName, account.PasswordHash, toMillis(account.CreatedAt))
	if err != nil {
		if taken := takenError(err); taken != nil {
			return taken
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "read inserted account id").
			Wrap(err)
	}
	account.ID = id
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.get(row, "ACCOUNT_GET_BY_ID_FAILED")
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return r.get(row, "ACCOUNT_GET_BY_EMAIL_FAILED")
}

// GetByDisplayName retrieves an account by exact display name.
func (r *AccountRepository) GetByDisplayName(ctx context.Context, displayName string) (*auth.Account, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE display_name = ?`, displayName)
	return r.get(row, "ACCOUNT_GET_BY_DISPLAY_NAME_FAILED")
}

func (r *AccountRepository) get(row *sql.Row, failCode string) (*auth.Account, error) {
	var (
		a         auth.Account
		createdAt int64
	)
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code(failCode).With("operation", "scan account").Wrap(err)
	}
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}

// Update writes the mutable fields of the account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE accounts SET email = ?, display_name = ?, password_hash = ?
		WHERE id = ?
	`, account.Email, account.DisplayName, account.PasswordHash, account.ID)
	if err != nil {
		if taken := takenError(err); taken != nil {
			return taken
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID).
			Wrap(err)
	}
	return requireRow(res, account.ID)
}

// Delete removes an account. Its refresh records go with it via the
// foreign key cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id).
			Wrap(err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("ACCOUNT_ROWS_AFFECTED_FAILED").With("id", id).Wrap(err)
	}
	if n == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// takenError maps a unique violation on accounts to its sentinel, or
// returns nil. SQLite names the column in the message
// ("UNIQUE constraint failed: accounts.email").
func takenError(err error) error {
	if !isUniqueViolation(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "accounts.email"):
		return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(auth.ErrEmailTaken)
	case strings.Contains(msg, "accounts.display_name"):
		return oops.Code("ACCOUNT_DISPLAY_NAME_TAKEN").Wrap(auth.ErrDisplayNameTaken)
	default:
		return nil
	}
}
