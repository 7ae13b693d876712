//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/eventdesk/eventdesk/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })
		// Containers run in random order; start from an empty schema.
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1, 2}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		// A second run is a no-op.
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps back and forward one version", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("rolls everything back and re-applies", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		Expect(migrator.Force(2)).To(Succeed())
	})
})

var _ = Describe("Schema", Ordered, func() {
	var pool *pgxpool.Pool
	ctx := context.Background()

	BeforeAll(func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		pool, err = store.Open(ctx, connStr, store.PoolConfig{MaxConns: 4})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	It("reports ready while the database answers", func() {
		Expect(store.ReadinessCheck(pool, time.Second)()).To(BeTrue())
	})

	It("rejects emails that differ only by case", func() {
		_, err := pool.Exec(ctx, `INSERT INTO users (id, full_name, email, phone, password_hash)
			VALUES ('u1', 'Ada', 'ada@example.com', '+15550001', 'x')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `INSERT INTO users (id, full_name, email, phone, password_hash)
			VALUES ('u2', 'Ada', 'ADA@example.com', '+15550002', 'x')`)
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown roles", func() {
		_, err := pool.Exec(ctx, `INSERT INTO users (id, full_name, email, phone, password_hash, role)
			VALUES ('u3', 'Bob', 'bob@example.com', '+15550003', 'x', 'JANITOR')`)
		Expect(err).To(HaveOccurred())
	})

	It("allows one live code per user and purpose", func() {
		_, err := pool.Exec(ctx, `INSERT INTO otp_codes (id, user_id, purpose, code_hash, expires_at)
			VALUES ('o1', 'u1', 'LOGIN', 'h', now() + interval '10 minutes')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `INSERT INTO otp_codes (id, user_id, purpose, code_hash, expires_at)
			VALUES ('o2', 'u1', 'LOGIN', 'h', now() + interval '10 minutes')`)
		Expect(err).To(HaveOccurred())

		_, err = pool.Exec(ctx, `UPDATE otp_codes SET consumed_at = now() WHERE id = 'o1'`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO otp_codes (id, user_id, purpose, code_hash, expires_at)
			VALUES ('o2', 'u1', 'LOGIN', 'h', now() + interval '10 minutes')`)
		Expect(err).NotTo(HaveOccurred())
	})
})
