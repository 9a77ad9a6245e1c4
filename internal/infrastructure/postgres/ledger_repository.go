package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ledgersync/internal/domain/account"
)

// LedgerRepository implements account.LedgerRepository for PostgreSQL
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new PostgreSQL ledger account repository
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `
	id, family_id, snapshot_id, name, mask, institution_name, currency, kind, kind_details,
	balance_minor, external_id, provider, last_synced_at, sync_error, sync_error_at, created_at, updated_at`

func scanLedgerAccount(row rowScanner) (*account.LedgerAccount, error) {
	var la account.LedgerAccount
	var mask, institutionName, syncError sql.NullString
	var lastSyncedAt, syncErrorAt sql.NullTime
	var kind account.KindType
	var details []byte

	err := row.Scan(
		&la.ID, &la.FamilyID, &la.SnapshotID, &la.Name, &mask, &institutionName, &la.Currency,
		&kind, &details, &la.BalanceMinor, &la.ExternalID, &la.Provider,
		&lastSyncedAt, &syncError, &syncErrorAt, &la.CreatedAt, &la.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	la.Kind, err = account.DecodeKind(kind, details)
	if err != nil {
		return nil, fmt.Errorf("failed to decode kind of ledger account %s: %w", la.ID, err)
	}
	la.Mask = mask.String
	la.InstitutionName = institutionName.String
	la.SyncError = syncError.String
	la.LastSyncedAt = timePtr(lastSyncedAt)
	la.SyncErrorAt = timePtr(syncErrorAt)
	return &la, nil
}

// CreateForSnapshot inserts the ledger account of a snapshot. When the
// snapshot already owns one, that account is returned unchanged.
func (r *LedgerRepository) CreateForSnapshot(ctx context.Context, params account.CreateParams) (*account.LedgerAccount, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	kind, details, err := account.EncodeKind(params.Kind)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO ledger_accounts (
			id, family_id, snapshot_id, name, mask, institution_name, currency, kind, kind_details,
			balance_minor, external_id, provider, last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (snapshot_id) DO NOTHING
		RETURNING ` + ledgerColumns

	la, err := scanLedgerAccount(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.FamilyID, params.SnapshotID, params.Name,
		nullString(params.Mask), nullString(params.InstitutionName), params.Currency,
		kind, details, params.BalanceMinor, params.ExternalID, account.Provider, params.SyncedAt,
	))
	if err == sql.ErrNoRows {
		return r.getBySnapshot(ctx, params.SnapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger account: %w", err)
	}
	return la, nil
}

func (r *LedgerRepository) getBySnapshot(ctx context.Context, snapshotID string) (*account.LedgerAccount, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_accounts WHERE snapshot_id = $1`

	la, err := scanLedgerAccount(r.db.QueryRowContext(ctx, query, snapshotID))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger account for snapshot: %w", err)
	}
	return la, nil
}

// GetByID retrieves a ledger account by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*account.LedgerAccount, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_accounts WHERE id = $1`

	la, err := scanLedgerAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}
	return la, nil
}

// RefreshMetadata updates the mask, currency and sync time of a linked
// account and clears its sync error. The balance is left alone.
func (r *LedgerRepository) RefreshMetadata(ctx context.Context, id string, params account.MetadataParams) error {
	query := `
		UPDATE ledger_accounts
		SET mask = $2, currency = COALESCE($3, currency), last_synced_at = $4,
		    sync_error = NULL, sync_error_at = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, nullString(params.Mask), nullString(params.Currency), params.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to refresh ledger account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}
