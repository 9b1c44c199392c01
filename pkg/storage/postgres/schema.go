package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; each statement is idempotent
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS billing_profile (
		user_id              TEXT PRIMARY KEY,
		balance_cents        BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		fractional_credit    INTEGER NOT NULL DEFAULT 0 CHECK (fractional_credit >= 0 AND fractional_credit < 1000),
		plan                 TEXT NOT NULL DEFAULT 'free',
		monthly_spend_cents  BIGINT NOT NULL DEFAULT 0,
		monthly_limit_cents  BIGINT,
		stripe_customer_id   TEXT,
		payment_method_id    TEXT,
		auto_recharge        BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL DEFAULT '',
		key_prefix  TEXT NOT NULL,
		key_hash    TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys (user_id)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		user_id    TEXT NOT NULL,
		tool_id    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, tool_id)
	)`,
	`CREATE TABLE IF NOT EXISTS billing_events (
		event_id      TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		kind          TEXT NOT NULL,
		amount_cents  BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the stores need
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	return nil
}
