// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshRecord is the persisted half of a refresh token. Only the hash of
// the secret is stored.
type RefreshRecord struct {
	ID         ulid.ULID
	AccountID  int64
	TokenHash  string
	FamilyID   ulid.ULID
	ReplacedBy *ulid.ULID // successor after rotation
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// NewRefreshRecord creates a validated RefreshRecord. A zero familyID starts
// a new lineage rooted at the record itself.
func NewRefreshRecord(accountID int64, tokenHash string, familyID ulid.ULID, now, expiresAt time.Time) (*RefreshRecord, error) {
	if accountID <= 0 {
		return nil, oops.Code("REFRESH_INVALID_ACCOUNT").Errorf("account ID must be positive")
	}
	if tokenHash == "" {
		return nil, oops.Code("REFRESH_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("REFRESH_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	id := ulid.Make()
	if familyID.Compare(ulid.ULID{}) == 0 {
		familyID = id
	}
	return &RefreshRecord{
		ID:        id,
		AccountID: accountID,
		TokenHash: tokenHash,
		FamilyID:  familyID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsLiveAt reports whether the record can still be consumed at t.
func (r *RefreshRecord) IsLiveAt(t time.Time) bool {
	return !r.Revoked && t.Before(r.ExpiresAt)
}

// HashRefreshSecret computes the SHA256 hash of a refresh secret.
// This is a lookup key, not a password digest.
func HashRefreshSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// RefreshRepository manages refresh record persistence.
//
// Revoked is monotonic: no method may set it back to false.
type RefreshRepository interface {
	// Create stores a new record.
	Create(ctx context.Context, record *RefreshRecord) error

	// GetByTokenHash retrieves a record by hash regardless of state.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshRecord, error)

	// RevokeLive atomically revokes the record with tokenHash if it is
	// unrevoked and unexpired at now, returning the now-revoked record.
	// Returns ErrNotFound when no live record matched; exactly one
	// concurrent caller can succeed for a given hash.
	RevokeLive(ctx context.Context, tokenHash string, now time.Time) (*RefreshRecord, error)

	// SetReplacedBy links a revoked record to its successor.
	SetReplacedBy(ctx context.Context, id, replacedBy ulid.ULID) error

	// RevokeAllForAccount revokes every unrevoked record of the account and
	// returns how many changed.
	RevokeAllForAccount(ctx context.Context, accountID int64, now time.Time) (int64, error)

	// RevokeFamily revokes every unrevoked record in the lineage and returns
	// how many changed.
	RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error)

	// DeleteExpiredBefore removes records that expired before cutoff and
	// returns how many were deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
