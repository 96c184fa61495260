package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local development and tests.
// Postgres-only defaults (gen_random_uuid, enum types) are replaced by the
// model BeforeCreate hooks and plain TEXT columns.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT,
		username TEXT,
		bio TEXT,
		image TEXT,
		stripe_connected_account_id TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email ON users(email)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_username ON users(username)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_stripe_connected_account_id ON users(stripe_connected_account_id)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL,
		price INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		donor_name TEXT NOT NULL,
		donor_message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		stripe_checkout_session_id TEXT,
		stripe_payment_intent_id TEXT,
		paid_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (price = amount + fee)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_user_status_created ON donations(user_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS stripe_webhook_events (
		id TEXT PRIMARY KEY,
		stripe_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payment_intent_id TEXT NOT NULL,
		checkout_session_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at DATETIME NOT NULL,
		last_error TEXT,
		processed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_stripe_webhook_events_event_id ON stripe_webhook_events(stripe_event_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		next_attempt_at DATETIME
	)`,
}

// EnsureSQLiteSchema creates the tables on a SQLite connection. It is a no-op
// for any other dialect; Postgres schemas are owned by goose.
func EnsureSQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil || conn.Dialector.Name() != DriverSQLite {
		return nil
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
