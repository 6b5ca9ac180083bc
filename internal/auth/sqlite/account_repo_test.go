// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/auth/sqlite"
	"github.com/calmpulse/calmpulse/pkg/errutil"
)

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := sqlite.NewAccountRepository(db)

	t.Run("round trip", func(t *testing.T) {
		account := createAccount(t, db, "roundtrip")
		assert.Positive(t, account.ID)

		byID, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Email, byID.Email)
		assert.True(t, account.CreatedAt.Equal(byID.CreatedAt))

		byName, err := repo.GetByDisplayName(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, account.ID, byName.ID)
	})

	t.Run("lookups are exact", func(t *testing.T) {
		createAccount(t, db, "exact")
		_, err := repo.GetByEmail(ctx, "EXACT@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByDisplayName(ctx, "Exact")
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("duplicate email", func(t *testing.T) {
		createAccount(t, db, "dupemail")
		err := repo.Create(ctx, &auth.Account{
			Email: "dupemail@example.com", DisplayName: "someone", PasswordHash: "h", CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "ACCOUNT_EMAIL_TAKEN")
	})

	t.Run("duplicate display name", func(t *testing.T) {
		createAccount(t, db, "dupname")
		err := repo.Create(ctx, &auth.Account{
			Email: "fresh@example.com", DisplayName: "dupname", PasswordHash: "h", CreatedAt: time.Now(),
		})
		assert.ErrorIs(t, err, auth.ErrDisplayNameTaken)
	})

	t.Run("update", func(t *testing.T) {
		account := createAccount(t, db, "before")
		account.DisplayName = "after"
		account.PasswordHash = "rehashed"
		require.NoError(t, repo.Update(ctx, account))

		stored, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "after", stored.DisplayName)
		assert.Equal(t, "rehashed", stored.PasswordHash)
	})

	t.Run("update onto a taken email", func(t *testing.T) {
		createAccount(t, db, "holder")
		account := createAccount(t, db, "mover")
		account.Email = "holder@example.com"
		assert.ErrorIs(t, repo.Update(ctx, account), auth.ErrEmailTaken)
	})

	t.Run("update missing account", func(t *testing.T) {
		err := repo.Update(ctx, &auth.Account{ID: 424242, Email: "ghost@example.com", DisplayName: "ghost", PasswordHash: "h"})
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		account := createAccount(t, db, "doomed")
		require.NoError(t, repo.Delete(ctx, account.ID))
		assert.ErrorIs(t, repo.Delete(ctx, account.ID), auth.ErrNotFound)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		first := createAccount(t, db, "firstborn")
		require.NoError(t, repo.Delete(ctx, first.ID))
		second := createAccount(t, db, "secondborn")
		assert.Greater(t, second.ID, first.ID)
	})
}
