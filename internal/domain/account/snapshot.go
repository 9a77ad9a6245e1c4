package account

import (
	"encoding/json"
	"fmt"
	"time"

	"ledgersync/internal/domain/money"
	"ledgersync/internal/shared/flexjson"
)

// Snapshot is one external account as last reported by the aggregator.
// RawPayload is authoritative; every derived field is read from it.
type Snapshot struct {
	ID                string
	ConnectionID      string
	ExternalAccountID string
	ProviderAccountID string
	LedgerAccountID   *string
	RawPayload        json.RawMessage
	LastSyncedAt      time.Time
	CreatedAt         time.Time
}

// IsLinked reports whether a LedgerAccount has been created for the snapshot.
func (s *Snapshot) IsLinked() bool {
	return s.LedgerAccountID != nil && *s.LedgerAccountID != ""
}

// Details are the snapshot fields the ledger derives from the raw payload.
type Details struct {
	Container         string           `json:"CONTAINER"`
	AccountName       string           `json:"accountName"`
	AccountNumber     string           `json:"accountNumber"`
	AccountType       string           `json:"accountType"`
	ProviderName      string           `json:"providerName"`
	ProviderID        flexjson.ID      `json:"providerId"`
	ProviderAccountID flexjson.ID      `json:"providerAccountId"`
	Currency          string           `json:"currency"`
	Balance           *money.Amount    `json:"balance"`
	AvailableCredit   *money.Amount    `json:"availableCredit"`
	InterestRate      flexjson.Decimal `json:"interestRate"`
}

// Details decodes the derived fields from the raw payload.
func (s *Snapshot) Details() (Details, error) {
	var d Details
	if len(s.RawPayload) == 0 {
		return d, ErrEmptyPayload
	}
	if err := json.Unmarshal(s.RawPayload, &d); err != nil {
		return d, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	return d, nil
}

// Mask returns the last four characters of the account number.
func (d Details) Mask() string {
	n := len(d.AccountNumber)
	if n <= 4 {
		return d.AccountNumber
	}
	return d.AccountNumber[n-4:]
}

// BalanceMinor returns the reported balance in minor units. Nil when the
// balance is missing or not a number.
func (d Details) BalanceMinor() *int64 {
	if d.Balance == nil {
		return nil
	}
	v, err := d.Balance.Minor()
	if err != nil {
		return nil
	}
	return &v
}

// CurrencyOr returns the reported currency or fallback when none is present.
func (d Details) CurrencyOr(fallback string) string {
	if d.Currency != "" {
		return d.Currency
	}
	if d.Balance != nil && d.Balance.Currency != "" {
		return d.Balance.Currency.String()
	}
	return fallback
}

// UpsertSnapshotParams contains parameters for upserting a snapshot keyed by
// (ConnectionID, ExternalAccountID).
type UpsertSnapshotParams struct {
	ConnectionID      string
	ExternalAccountID string
	ProviderAccountID string
	RawPayload        json.RawMessage
	SyncedAt          time.Time
}

// Validate validates the upsert parameters
func (p UpsertSnapshotParams) Validate() error {
	if p.ConnectionID == "" {
		return fmt.Errorf("%w: connection ID is required", ErrInvalidInput)
	}
	if p.ExternalAccountID == "" {
		return fmt.Errorf("%w: external account ID is required", ErrInvalidInput)
	}
	if len(p.RawPayload) == 0 {
		return ErrEmptyPayload
	}
	return nil
}
