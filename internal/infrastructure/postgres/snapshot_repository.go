package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ledgersync/internal/domain/account"
)

// SnapshotRepository implements account.SnapshotRepository for PostgreSQL
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, connection_id, external_account_id, provider_account_id, ledger_account_id, raw_payload, last_synced_at, created_at`

func scanSnapshot(row rowScanner) (*account.Snapshot, error) {
	var s account.Snapshot
	var providerAccountID, ledgerAccountID sql.NullString
	var raw []byte

	err := row.Scan(
		&s.ID, &s.ConnectionID, &s.ExternalAccountID, &providerAccountID,
		&ledgerAccountID, &raw, &s.LastSyncedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProviderAccountID = providerAccountID.String
	s.LedgerAccountID = stringPtr(ledgerAccountID)
	s.RawPayload = json.RawMessage(raw)
	return &s, nil
}

// Upsert inserts the snapshot or overwrites its payload and sync time. The
// ledger link is never touched here.
func (r *SnapshotRepository) Upsert(ctx context.Context, params account.UpsertSnapshotParams) (*account.Snapshot, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO account_snapshots (id, connection_id, external_account_id, provider_account_id, raw_payload, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id, external_account_id) DO UPDATE SET
			provider_account_id = EXCLUDED.provider_account_id,
			raw_payload = EXCLUDED.raw_payload,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING ` + snapshotColumns

	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.ConnectionID, params.ExternalAccountID,
		nullString(params.ProviderAccountID), []byte(params.RawPayload), params.SyncedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account snapshot: %w", err)
	}
	return s, nil
}

// ListByConnection returns every snapshot of a connection
func (r *SnapshotRepository) ListByConnection(ctx context.Context, connectionID string) ([]*account.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM account_snapshots
		WHERE connection_id = $1
		ORDER BY created_at, id`
	return r.list(ctx, query, connectionID)
}

// ListLinkedByConnection returns the snapshots that have a ledger account
func (r *SnapshotRepository) ListLinkedByConnection(ctx context.Context, connectionID string) ([]*account.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM account_snapshots
		WHERE connection_id = $1 AND ledger_account_id IS NOT NULL
		ORDER BY created_at, id`
	return r.list(ctx, query, connectionID)
}

func (r *SnapshotRepository) list(ctx context.Context, query string, args ...any) ([]*account.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list account snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*account.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account snapshots: %w", err)
	}
	return snapshots, nil
}

// Link attaches a ledger account to an unlinked snapshot. Re-linking to the
// same account is a no-op.
func (r *SnapshotRepository) Link(ctx context.Context, snapshotID, ledgerAccountID string) error {
	query := `
		UPDATE account_snapshots
		SET ledger_account_id = $2
		WHERE id = $1 AND (ledger_account_id IS NULL OR ledger_account_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, snapshotID, ledgerAccountID)
	if err != nil {
		return fmt.Errorf("failed to link account snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM account_snapshots WHERE id = $1)`, snapshotID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check account snapshot: %w", err)
	}
	if !exists {
		return account.ErrSnapshotNotFound
	}
	return account.ErrAlreadyLinked
}
