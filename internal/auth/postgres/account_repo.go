// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// Constraint names from the accounts migration.
const (
	constraintAccountsEmail       = "accounts_email_key"
	constraintAccountsDisplayName = "accounts_display_name_key"
)

const accountColumns = `id, email, display_name, password_hash, created_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts the account and sets its store-assigned ID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accounts (email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		account.CreatedAt,
	).Scan(&account.ID)
	if err != nil {
		if taken := takenError(err); taken != nil {
			return taken
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// GetByDisplayName retrieves an account by exact display name.
func (r *AccountRepository) GetByDisplayName(ctx context.Context, displayName string) (*auth.Account, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE display_name = $1`, displayName)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_DISPLAY_NAME_FAILED").
			With("operation", "get account by display name").
			Wrap(err)
	}
	return account, nil
}

// Update writes the mutable fields of the account.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE accounts SET email = $2, display_name = $3, password_hash = $4
		WHERE id = $1
	`,
		account.ID,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
	)
	if err != nil {
		if taken := takenError(err); taken != nil {
			return taken
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", account.ID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Its refresh records go with it via the
// foreign key cascade.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// takenError maps a unique violation on accounts to its sentinel, or
// returns nil.
func takenError(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintAccountsEmail:
		return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(auth.ErrEmailTaken)
	case constraintAccountsDisplayName:
		return oops.Code("ACCOUNT_DISPLAY_NAME_TAKEN").Wrap(auth.ErrDisplayNameTaken)
	default:
		return nil
	}
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var a auth.Account
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish pgx.ErrNoRows
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
