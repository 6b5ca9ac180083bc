// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RefreshLedger tracks which refresh secrets are live. A secret is
// single-use: consuming it revokes its record.
type RefreshLedger struct {
	records RefreshRepository
	tx      Transactor
	now     func() time.Time
}

// LedgerOption configures a RefreshLedger.
type LedgerOption func(*RefreshLedger)

// WithLedgerClock overrides the ledger's time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *RefreshLedger) {
		l.now = now
	}
}

// NewRefreshLedger creates a RefreshLedger.
func NewRefreshLedger(records RefreshRepository, tx Transactor, opts ...LedgerOption) (*RefreshLedger, error) {
	if records == nil {
		return nil, oops.Errorf("refresh repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	l := &RefreshLedger{records: records, tx: tx, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record persists a new lineage for tokenSecret expiring ttl from now.
func (l *RefreshLedger) Record(ctx context.Context, accountID int64, tokenSecret string, ttl time.Duration) (*RefreshRecord, error) {
	return l.record(ctx, accountID, tokenSecret, ttl, ulid.ULID{})
}

func (l *RefreshLedger) record(ctx context.Context, accountID int64, tokenSecret string, ttl time.Duration, family ulid.ULID) (*RefreshRecord, error) {
	if tokenSecret == "" {
		return nil, oops.Code("REFRESH_SECRET_EMPTY").Errorf("refresh secret cannot be empty")
	}
	now := l.now()
	rec, err := NewRefreshRecord(accountID, HashRefreshSecret(tokenSecret), family, now, now.Add(ttl))
	if err != nil {
		return nil, err
	}
	if err := l.records.Create(ctx, rec); err != nil {
		return nil, oops.Code("REFRESH_RECORD_FAILED").
			With("operation", "persist refresh record").
			With("account_id", accountID).
			Wrap(err)
	}
	return rec, nil
}

// Consume revokes the live record for tokenSecret and returns it.
//
// Failures wrap ErrRefreshUnknown, ErrRefreshExpired or ErrRefreshReplayed
// (as *ReplayError). Store failures are returned with their own code.
func (l *RefreshLedger) Consume(ctx context.Context, tokenSecret string) (*RefreshRecord, error) {
	hash := HashRefreshSecret(tokenSecret)
	now := l.now()

	rec, err := l.records.RevokeLive(ctx, hash, now)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("REFRESH_CONSUME_FAILED").
			With("operation", "revoke live record").
			Wrap(err)
	}
	return nil, l.classify(ctx, hash, now)
}

// classify explains why no live record matched hash.
func (l *RefreshLedger) classify(ctx context.Context, hash string, now time.Time) error {
	existing, err := l.records.GetByTokenHash(ctx, hash)
	switch {
	case errors.Is(err, ErrNotFound):
		return oops.Code("REFRESH_UNKNOWN").Wrap(ErrRefreshUnknown)
	case err != nil:
		return oops.Code("REFRESH_CONSUME_FAILED").
			With("operation", "classify refresh record").
			Wrap(err)
	case existing.Revoked && existing.ReplacedBy == nil:
		return oops.Code("REFRESH_REVOKED").
			With("record_id", existing.ID.String()).
			Wrap(ErrRefreshRevoked)
	case existing.Revoked:
		return oops.Code("REFRESH_REPLAYED").
			With("record_id", existing.ID.String()).
			With("family_id", existing.FamilyID.String()).
			Wrap(&ReplayError{RecordID: existing.ID, FamilyID: existing.FamilyID, AccountID: existing.AccountID})
	case !now.Before(existing.ExpiresAt):
		return oops.Code("REFRESH_EXPIRED").
			With("expired_at", existing.ExpiresAt).
			Wrap(ErrRefreshExpired)
	default:
		// Live now but missed by the conditional update: it was created
		// concurrently under the same hash, which cannot be a legitimate use.
		return oops.Code("REFRESH_UNKNOWN").Wrap(ErrRefreshUnknown)
	}
}

// Rotate consumes tokenSecret and records nextSecret as its successor in
// the same lineage, all in one transaction. accountID must own the
// consumed record.
func (l *RefreshLedger) Rotate(ctx context.Context, accountID int64, tokenSecret, nextSecret string, ttl time.Duration) (*RefreshRecord, error) {
	var next *RefreshRecord
	err := l.tx.InTransaction(ctx, func(ctx context.Context) error {
		prev, err := l.Consume(ctx, tokenSecret)
		if err != nil {
			return err
		}
		if prev.AccountID != accountID {
			return oops.Code("REFRESH_OWNER_MISMATCH").
				With("record_id", prev.ID.String()).
				Wrap(ErrRefreshUnknown)
		}

		next, err = l.record(ctx, prev.AccountID, nextSecret, ttl, prev.FamilyID)
		if err != nil {
			return err
		}

		if err := l.records.SetReplacedBy(ctx, prev.ID, next.ID); err != nil {
			return oops.Code("REFRESH_LINK_FAILED").
				With("record_id", prev.ID.String()).
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// RevokeAll revokes every live record of the account. Idempotent.
func (l *RefreshLedger) RevokeAll(ctx context.Context, accountID int64) (int64, error) {
	n, err := l.records.RevokeAllForAccount(ctx, accountID, l.now())
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ALL_FAILED").
			With("account_id", accountID).
			Wrap(err)
	}
	return n, nil
}

// RevokeFamily revokes every live record descending from the same login.
func (l *RefreshLedger) RevokeFamily(ctx context.Context, familyID ulid.ULID) (int64, error) {
	n, err := l.records.RevokeFamily(ctx, familyID, l.now())
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_FAMILY_FAILED").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return n, nil
}

// Purge deletes records that expired more than grace ago. Recently expired
// records are kept so that replays of them are still classified as expired.
func (l *RefreshLedger) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := l.now().Add(-grace)
	n, err := l.records.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("REFRESH_PURGE_FAILED").
			With("cutoff", cutoff).
			Wrap(err)
	}
	return n, nil
}
