// Package dbtest opens in-memory SQLite databases carrying the application
// schema so repository and service tests run without Postgres.
package dbtest

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/creatorpage-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		payee_reference TEXT NOT NULL,
		currency TEXT NOT NULL,
		allow_anonymous_enquiry BOOLEAN NOT NULL DEFAULT 0,
		allow_anonymous_purchase BOOLEAN NOT NULL DEFAULT 0,
		is_published BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		title TEXT NOT NULL,
		price_minor INTEGER NOT NULL,
		currency TEXT,
		allow_anonymous_purchase BOOLEAN,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE blocks (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		product_id TEXT,
		cta TEXT NOT NULL DEFAULT 'none',
		target_url TEXT,
		allow_anonymous_enquiry BOOLEAN,
		is_visible BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE intents (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		block_id TEXT,
		product_id TEXT,
		actor TEXT NOT NULL,
		cta_kind TEXT NOT NULL,
		requires_login BOOLEAN NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		amount_minor INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		payee_reference TEXT,
		target_url TEXT,
		expires_at DATETIME NOT NULL,
		resumed_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payment_orders (
		id TEXT PRIMARY KEY,
		intent_id TEXT,
		provider TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payee_reference TEXT NOT NULL,
		payer_actor TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		external_reference TEXT,
		payable_handle TEXT,
		poll_attempts INTEGER NOT NULL DEFAULT 0,
		amount_confirmed_minor INTEGER,
		failure_reason TEXT,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_orders_active_intent ON payment_orders (intent_id)
		WHERE intent_id IS NOT NULL AND status IN ('created', 'pending_confirmation')`,
	`CREATE UNIQUE INDEX ux_payment_orders_external_reference ON payment_orders (provider, external_reference)
		WHERE external_reference IS NOT NULL`,
	`CREATE TABLE leads (
		id TEXT PRIMARY KEY,
		intent_id TEXT NOT NULL UNIQUE,
		profile_id TEXT NOT NULL,
		block_id TEXT,
		product_id TEXT,
		actor TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		message TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		terminal_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)`,
}

// Open returns a fresh in-memory database with the full schema applied.
// The pool is pinned to one connection so every statement sees the same
// database; code under test must use the tx handle inside WithTx.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in the transactional client used by services.
func OpenClient(t *testing.T) (*dbpkg.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return dbpkg.NewFromGorm(conn), conn
}
