package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order. Each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS families (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'USD',
		auto_categorize_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id UUID PRIMARY KEY,
		family_id UUID NOT NULL REFERENCES families(id),
		name TEXT NOT NULL,
		provider_id TEXT,
		session_token TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'good' CHECK (status IN ('good', 'requires_update')),
		sync_state TEXT NOT NULL DEFAULT 'idle' CHECK (sync_state IN ('idle', 'running')),
		sync_started_at TIMESTAMPTZ,
		sync_lease TEXT,
		last_synced_at TIMESTAMPTZ,
		scheduled_for_deletion BOOLEAN NOT NULL DEFAULT FALSE,
		institution_id TEXT,
		institution_url TEXT,
		institution_color TEXT,
		institution_logo_url TEXT,
		raw_institution_payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_family ON connections(family_id)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_provider ON connections(provider_id) WHERE scheduled_for_deletion = FALSE`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
		id UUID PRIMARY KEY,
		family_id UUID NOT NULL REFERENCES families(id),
		snapshot_id UUID NOT NULL UNIQUE,
		name TEXT NOT NULL,
		mask TEXT,
		institution_name TEXT,
		currency CHAR(3) NOT NULL,
		kind TEXT NOT NULL,
		kind_details JSONB NOT NULL DEFAULT '{}',
		balance_minor BIGINT NOT NULL DEFAULT 0,
		external_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		last_synced_at TIMESTAMPTZ,
		sync_error TEXT,
		sync_error_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS account_snapshots (
		id UUID PRIMARY KEY,
		connection_id UUID NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
		external_account_id TEXT NOT NULL,
		provider_account_id TEXT,
		ledger_account_id UUID REFERENCES ledger_accounts(id),
		raw_payload JSONB NOT NULL,
		last_synced_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (connection_id, external_account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_snapshots_provider_account ON account_snapshots(provider_account_id)`,
	`CREATE TABLE IF NOT EXISTS merchants (
		id UUID PRIMARY KEY,
		family_id UUID NOT NULL REFERENCES families(id),
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (family_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS imported_transactions (
		id UUID PRIMARY KEY,
		ledger_account_id UUID NOT NULL REFERENCES ledger_accounts(id) ON DELETE CASCADE,
		external_id TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		date DATE NOT NULL,
		description TEXT NOT NULL,
		notes TEXT,
		category TEXT NOT NULL,
		merchant_id UUID REFERENCES merchants(id),
		raw_payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (ledger_account_id, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_imported_transactions_date ON imported_transactions(ledger_account_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id UUID PRIMARY KEY,
		connection_id UUID NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
		status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_connection ON sync_runs(connection_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_events (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('account_imported', 'transactions_imported')),
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_events_pending ON sync_events(created_at) WHERE processed_at IS NULL`,
}

// Migrate applies every schema statement in order.
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
