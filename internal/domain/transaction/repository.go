package transaction

import "context"

// Repository defines data access for imported transactions
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// ExistsByExternalID checks whether externalID was already imported into the ledger account.
	ExistsByExternalID(ctx context.Context, ledgerAccountID, externalID string) (bool, error)

	// Create inserts the transaction. Returns ErrDuplicate when the
	// (ledger account, external id) pair already exists.
	Create(ctx context.Context, params CreateParams) (*Transaction, error)

	ListByLedgerAccount(ctx context.Context, ledgerAccountID string) ([]*Transaction, error)
}

// MerchantRepository defines data access for merchants.
type MerchantRepository interface {
	// FindOrCreate returns the family's merchant with exactly this name,
	// creating it if absent. Never creates duplicates.
	FindOrCreate(ctx context.Context, familyID, name string) (*Merchant, error)
}
