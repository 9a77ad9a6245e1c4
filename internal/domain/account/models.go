package account

import (
	"errors"
	"time"
)

// Common ISO 4217 currency codes
var validCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "CAD": {}, "AUD": {},
	"NZD": {}, "JPY": {}, "CHF": {}, "CNY": {}, "INR": {},
	"MXN": {}, "BRL": {}, "ZAR": {}, "SEK": {}, "NOK": {},
	"DKK": {}, "PLN": {}, "SGD": {}, "HKD": {}, "KRW": {},
}

// Domain errors
var (
	ErrAccountNotFound  = errors.New("ledger account not found")
	ErrSnapshotNotFound = errors.New("account snapshot not found")
	ErrAlreadyLinked    = errors.New("snapshot already linked to a ledger account")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidKind      = errors.New("invalid account kind")
	ErrInvalidCurrency  = errors.New("valid ISO 4217 currency is required")
	ErrEmptyPayload     = errors.New("snapshot payload is empty")
)

// Provider is the provider tag written on imported ledger accounts.
const Provider = "yodlee"

// LedgerAccount is the normalized account in the host ledger.
type LedgerAccount struct {
	ID              string
	FamilyID        string
	SnapshotID      string
	Name            string
	Mask            string
	InstitutionName string
	Currency        string
	Kind            Kind
	BalanceMinor    int64
	ExternalID      string
	Provider        string
	LastSyncedAt    *time.Time
	SyncError       string
	SyncErrorAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams contains parameters for creating the ledger account of a snapshot.
type CreateParams struct {
	FamilyID        string
	SnapshotID      string
	Name            string
	Mask            string
	InstitutionName string
	Currency        string
	Kind            Kind
	BalanceMinor    int64
	ExternalID      string
	SyncedAt        time.Time
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.FamilyID == "" {
		return errors.New("family ID is required")
	}
	if p.SnapshotID == "" {
		return errors.New("snapshot ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if p.Kind == nil || !p.Kind.Type().IsValid() {
		return ErrInvalidKind
	}
	if !IsValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// MetadataParams is the set of fields refreshed on an already linked account.
// Balances are owned by balance processing and are not part of it.
type MetadataParams struct {
	Mask     string
	Currency string
	SyncedAt time.Time
}

// IsValidCurrency checks if the provided currency is a valid ISO 4217 code.
func IsValidCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	_, ok := validCurrencies[c]
	return ok
}
