package account

import "context"

// SnapshotRepository defines data access for external account snapshots
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type SnapshotRepository interface {
	// Upsert creates the snapshot or overwrites its payload and sync time.
	// Re-applying the same params yields the same end state.
	Upsert(ctx context.Context, params UpsertSnapshotParams) (*Snapshot, error)

	ListByConnection(ctx context.Context, connectionID string) ([]*Snapshot, error)

	// ListLinkedByConnection returns only snapshots with a ledger account.
	ListLinkedByConnection(ctx context.Context, connectionID string) ([]*Snapshot, error)

	// Link sets the ledger account of an unlinked snapshot. Linking an already
	// linked snapshot to a different account returns ErrAlreadyLinked.
	Link(ctx context.Context, snapshotID, ledgerAccountID string) error
}

// LedgerRepository defines data access for ledger accounts.
type LedgerRepository interface {
	// CreateForSnapshot creates the ledger account of a snapshot, or returns
	// the existing one when the snapshot already has an account.
	CreateForSnapshot(ctx context.Context, params CreateParams) (*LedgerAccount, error)

	GetByID(ctx context.Context, id string) (*LedgerAccount, error)

	// RefreshMetadata updates mask, currency and sync time and clears any
	// recorded sync error.
	RefreshMetadata(ctx context.Context, id string, params MetadataParams) error
}
