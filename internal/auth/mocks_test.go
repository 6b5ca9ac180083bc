// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package auth_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// mockAccountRepository is a mock for auth.AccountRepository.
type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id int64) (*auth.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByDisplayName(ctx context.Context, name string) (*auth.Account, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *mockAccountRepository) Update(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// mockRefreshRepository is a mock for auth.RefreshRepository.
type mockRefreshRepository struct {
	mock.Mock
}

func (m *mockRefreshRepository) Create(ctx context.Context, record *auth.RefreshRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRefreshRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RefreshRecord, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshRecord), args.Error(1)
}

func (m *mockRefreshRepository) RevokeLive(ctx context.Context, tokenHash string, now time.Time) (*auth.RefreshRecord, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshRecord), args.Error(1)
}

func (m *mockRefreshRepository) SetReplacedBy(ctx context.Context, id, replacedBy ulid.ULID) error {
	args := m.Called(ctx, id, replacedBy)
	return args.Error(0)
}

func (m *mockRefreshRepository) RevokeAllForAccount(ctx context.Context, accountID int64, now time.Time) (int64, error) {
	args := m.Called(ctx, accountID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshRepository) RevokeFamily(ctx context.Context, familyID ulid.ULID, now time.Time) (int64, error) {
	args := m.Called(ctx, familyID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// mockPasswordHasher is a mock for auth.PasswordHasher.
type mockPasswordHasher struct {
	mock.Mock
}

func (m *mockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *mockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// mockRecorder is a mock for auth.Recorder.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordAuthEvent(operation, outcome string) {
	m.Called(operation, outcome)
}

func (m *mockRecorder) RecordReplay() {
	m.Called()
}

// inlineTransactor runs fn directly and counts invocations. rollbacks
// counts calls whose fn returned an error.
type inlineTransactor struct {
	calls     int
	rollbacks int
}

func (t *inlineTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if err := fn(ctx); err != nil {
		t.rollbacks++
		return err
	}
	return nil
}

// fixedClock returns a clock frozen at a whole second so JWT NumericDate
// truncation does not shift expiries.
func fixedClock() (func() time.Time, time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, now
}

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessKey:  []byte("test-access-key-0123456789abcdef"),
		RefreshKey: []byte("test-refresh-key-0123456789abcdef"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "calmpulse-test",
	}
}
