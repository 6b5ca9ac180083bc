// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/internal/auth"
)

const refreshColumns = `id, account_id, token_hash, family_id, replaced_by, expires_at, revoked, revoked_at, created_at`

// RefreshRepository implements auth.RefreshRepository over SQLite.
type RefreshRepository struct {
	db *sql.DB
}

// NewRefreshRepository creates a new RefreshRepository.
func NewRefreshRepository(db *sql.DB) *RefreshRepository {
	return &RefreshRepository{db: db}
}

// Create stores a new refresh record.
func (r *RefreshRepository) Create(ctx context.Context, record *auth.RefreshRecord) error {
	var replacedBy, revokedAt any
	if record.ReplacedBy != nil {
		replacedBy = record.ReplacedBy.String()
	}
	if record.RevokedAt != nil {
		revokedAt = toMillis(*record.RevokedAt)
	}

	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, family_id, replaced_by, expires_at, revoked, revoked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID.String(),
		record.AccountID,
		record.TokenHash,
		record.FamilyID.String(),
		replacedBy,
		toMillis(record.ExpiresAt),
		record.Revoked,
		revokedAt,
		toMillis(record.CreatedAt),
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
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	rec, err := scanRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_GET_BY_TOKEN_FAILED").
			With("operation", "get refresh token by hash").
			Wrap(err)
	}
	return rec, nil
}

// RevokeLive revokes the record with a single conditional UPDATE.
func (r *RefreshRepository) RevokeLive(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshRecord, error) {
	ms := toMillis(now)
	row := conn(ctx, r.db).QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
		RETURNING `+refreshColumns,
		ms, tokenHash, ms,
	)
	rec, err := scanRefresh(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("REFRESH_NOT_LIVE").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("REFRESH_REVOKE_FAILED").
			With("operation", "revoke live refresh token").
			Wrap(err)
	}
	return rec, nil
}

// SetReplacedBy links a record to its successor.
func (r *RefreshRepository) SetReplacedBy(ctx context.Context, id, replacedBy ulid.ULID) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE refresh_tokens SET replaced_by = ? WHERE id = ?
	`, replacedBy.String(), id.String())
	if err != nil {
		return oops.Code("REFRESH_SET_REPLACED_BY_FAILED").
			With("operation", "update replaced_by").
			With("id", id.String()).
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("REFRESH_SET_REPLACED_BY_FAILED").With("id", id.String()).Wrap(err)
	}
	if n == 0 {
		return oops.Code("REFRESH_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeAllForAccount revokes every unrevoked record of the account.
func (r *RefreshRepository) RevokeAllForAccount(ctx context.Context, accountID int64, now time.Time) (int64, error) {
	return r.revokeWhere(ctx, "REFRESH_REVOKE_ACCOUNT_FAILED", `account_id = ?`, accountID, now)
}

// RevokeFamily revokes every unrevoked record of the lineage.
func (r *RefreshRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error) {
	return r.revokeWhere(ctx, "REFRESH_REVOKE_FAMILY_FAILED", `family_id = ?`, familyID.String(), now)
}

func (r *RefreshRepository) revokeWhere(ctx context.Context, failCode, predicate string, arg any, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE `+predicate+` AND revoked = 0
	`, toMillis(now), arg)
	if err != nil {
		return 0, oops.Code(failCode).With("operation", "bulk revoke refresh tokens").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code(failCode).With("operation", "count revoked refresh tokens").Wrap(err)
	}
	return n, nil
}

// DeleteExpiredBefore removes records that expired before cutoff.
func (r *RefreshRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("REFRESH_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return n, nil
}

func scanRefresh(row *sql.Row) (*auth.RefreshRecord, error) {
	var (
		rec                  auth.RefreshRecord
		idStr, familyStr     string
		replacedBy           sql.NullString
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
	)
	if err := row.Scan(
		&idStr,
		&rec.AccountID,
		&rec.TokenHash,
		&familyStr,
		&replacedBy,
		&expiresAt,
		&rec.Revoked,
		&revokedAt,
		&createdAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers distinguish sql.ErrNoRows
	}

	var err error
	if rec.ID, err = parseULID(idStr, "id"); err != nil {
		return nil, err
	}
	if rec.FamilyID, err = parseULID(familyStr, "family_id"); err != nil {
		return nil, err
	}
	if replacedBy.Valid {
		next, err := parseULID(replacedBy.String, "replaced_by")
		if err != nil {
			return nil, err
		}
		rec.ReplacedBy = &next
	}
	if revokedAt.Valid {
		t := fromMillis(revokedAt.Int64)
		rec.RevokedAt = &t
	}
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}
