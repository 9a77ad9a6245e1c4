package transaction

import (
	"encoding/json"
	"errors"
	"time"
)

// Domain errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicate           = errors.New("transaction already imported")
	ErrMerchantNotFound    = errors.New("merchant not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// PlaceholderDescription is used when the provider supplies no description.
const PlaceholderDescription = "Unknown Transaction"

// Transaction is one normalized imported transaction. ExternalID is the
// dedup key and is unique per ledger account.
type Transaction struct {
	ID              string
	LedgerAccountID string
	ExternalID      string
	AmountMinor     int64
	Currency        string
	Date            time.Time
	Description     string
	Notes           string
	Category        string
	MerchantID      *string
	RawPayload      json.RawMessage
	CreatedAt       time.Time
}

// IsOutflow reports whether the transaction moves money out of the account.
func (t *Transaction) IsOutflow() bool {
	return t.AmountMinor < 0
}

// CreateParams contains parameters for importing a transaction
type CreateParams struct {
	LedgerAccountID string
	ExternalID      string
	AmountMinor     int64
	Currency        string
	Date            time.Time
	Description     string
	Notes           string
	Category        string
	MerchantID      *string
	RawPayload      json.RawMessage
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.LedgerAccountID == "" {
		return errors.New("ledger account ID is required")
	}
	if p.ExternalID == "" {
		return errors.New("external transaction ID is required")
	}
	if p.Date.IsZero() {
		return errors.New("transaction date is required")
	}
	if p.Description == "" {
		return errors.New("description is required")
	}
	if p.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

// Merchant is a payee scoped to one family.
type Merchant struct {
	ID        string
	FamilyID  string
	Name      string
	CreatedAt time.Time
}
