// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/store"
)

var _ = Describe("Migrator against PostgreSQL", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(pgURL)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })
	})

	It("starts at version 0", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("walks up, down and back", func() {
		Expect(migrator.Up()).To(Succeed())
		latest, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(latest).To(Equal(uint(3)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(2)).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Force(3)).To(Succeed())
		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})
})

var _ = Describe("Backend", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("opens PostgreSQL and serves the auth repositories", func() {
		backend, err := store.Open(ctx, pgURL, store.Options{ConnectTimeout: 10 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)

		Expect(backend.Dialect).To(Equal(store.DialectPostgres))
		Expect(backend.Migrate()).To(Succeed())
		Expect(backend.Ping(ctx)).To(Succeed())

		account := &auth.Account{
			Email:        "backend@example.com",
			DisplayName:  "backend",
			PasswordHash: "hash",
			CreatedAt:    time.Now(),
		}
		Expect(backend.Accounts.Create(ctx, account)).To(Succeed())
		DeferCleanup(func() { _ = backend.Accounts.Delete(ctx, account.ID) })

		got, err := backend.Accounts.GetByEmail(ctx, "backend@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(account.ID))
	})

	It("opens SQLite in a temporary directory", func() {
		backend, err := store.Open(ctx, "sqlite://"+GinkgoT().TempDir()+"/calmpulse.db", store.Options{})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)

		Expect(backend.Migrate()).To(Succeed())
		_, err = backend.Accounts.GetByID(ctx, 1)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})
})
