// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/internal/auth"
)

const refreshColumns = `id, account_id, token_hash, family_id, replaced_by, expires_at, revoked, revoked_at, created_at`

// RefreshRepository implements auth.RefreshRepository using PostgreSQL.
type RefreshRepository struct {
	pool Pool
}

// NewRefreshRepository creates a new RefreshRepository.
func NewRefreshRepository(pool Pool) *RefreshRepository {
	return &RefreshRepository{pool: pool}
}

// Create stores a new refresh record.
func (r *RefreshRepository) Create(ctx context.Context, record *auth.RefreshRecord) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, family_id, replaced_by, expires_at, revoked, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.ID.String(),
		record.AccountID,
		record.TokenHash,
		record.FamilyID.String(),
		ulidToStringPtr(record.ReplacedBy),
		record.ExpiresAt,
		record.Revoked,
		record.RevokedAt,
		record.CreatedAt,
	)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").
			With("operation", "insert refresh token").
			With("account_id", record.AccountID).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a record by hash regardless of its state.
func (r *RefreshRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshRecord, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	record, err := scanRefresh(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_BY_TOKEN_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return record, nil
}

// RevokeLive revokes the record in a single conditional UPDATE. The row
// lock taken by the update serializes concurrent callers; the losers see
// revoked = TRUE on re-check and match nothing.
func (r *RefreshRepository) RevokeLive(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshRecord, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING `+refreshColumns,
		tokenHash, now,
	)
	record, err := scanRefresh(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_LIVE").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke live refresh token").
			Wrap(err)
	}
	return record, nil
}

// SetReplacedBy links a record to its successor.
func (r *RefreshRepository) SetReplacedBy(ctx context.Context, id, replacedBy ulid.ULID) error {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE refresh_tokens SET replaced_by = $2
		WHERE id = $1
	`, id.String(), replacedBy.String())
	if err != nil {
		return oops.Code("REFRESH_SET_REPLACED_BY_FAILED").
			With("operation", "update replaced_by").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("REFRESH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeAllForAccount revokes every unrevoked record of the account.
func (r *RefreshRepository) RevokeAllForAccount(ctx context.Context, accountID int64, now time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND NOT revoked
	`, accountID, now)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ACCOUNT_FAILED").
			With("operation", "revoke refresh tokens by account").
			With("account_id", accountID).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// RevokeFamily revokes every unrevoked record of the lineage.
func (r *RefreshRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE family_id = $1 AND NOT revoked
	`, familyID.String(), now)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAMILY_FAILED").
			With("operation", "revoke refresh tokens by family").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpiredBefore removes records that expired before cutoff.
func (r *RefreshRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanRefresh(row pgx.Row) (*auth.RefreshRecord, error) {
	var (
		rec              auth.RefreshRecord
		idStr, familyStr string
		replacedByStr    *string
	)
	if err := row.Scan(
		&idStr,
		&rec.AccountID,
		&rec.TokenHash,
		&familyStr,
		&replacedByStr,
		&rec.ExpiresAt,
		&rec.Revoked,
		&rec.RevokedAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish pgx.ErrNoRows
	}

	var err error
	if rec.ID, err = parseULID(idStr, "id"); err != nil {
		return nil, err
	}
	if rec.FamilyID, err = parseULID(familyStr, "family_id"); err != nil {
		return nil, err
	}
	if rec.ReplacedBy, err = parseOptionalULID(replacedByStr, "replaced_by"); err != nil {
		return nil, err
	}

	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.RevokedAt != nil {
		t := rec.RevokedAt.UTC()
		rec.RevokedAt = &t
	}
	return &rec, nil
}

// ulidToStringPtr returns nil for a nil input.
func ulidToStringPtr(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
