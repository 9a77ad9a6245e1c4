package sync

import (
	"context"
	"time"

	"ledgersync/internal/infrastructure/yodlee"
)

// AccountSource fetches the raw accounts visible to a connection's session.
type AccountSource interface {
	GetAccounts(ctx context.Context, sessionToken string) ([]yodlee.Account, error)
}

// TransactionSource fetches raw transactions across all of a session's accounts.
type TransactionSource interface {
	GetTransactions(ctx context.Context, sessionToken string, from, to time.Time) ([]yodlee.Transaction, error)
}

// InstitutionSource fetches institution details with the client-level token.
type InstitutionSource interface {
	GetInstitution(ctx context.Context, providerID string) (*yodlee.Institution, error)
}

// Notifier receives downstream events once a sync cycle has persisted its work.
// Implementations hand them to the ledger's recompute and categorization workers.
type Notifier interface {
	// AccountImported asks for balance and valuation recomputation of one ledger account.
	AccountImported(ctx context.Context, ledgerAccountID string) error

	// TransactionsImported asks for auto-categorization and merchant detection
	// of newly imported transactions.
	TransactionsImported(ctx context.Context, familyID string, transactionIDs []string) error
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) AccountImported(context.Context, string) error { return nil }

func (NopNotifier) TransactionsImported(context.Context, string, []string) error { return nil }

// Alerter tells a family that one of its connections needs re-linking.
type Alerter interface {
	NotifyConnectionNeedsAttention(ctx context.Context, familyID, connectionName string) error
}

// LogoStore copies an institution logo into storage the ledger controls and
// returns its public URL.
type LogoStore interface {
	StoreLogo(ctx context.Context, institutionID, sourceURL string) (string, error)
}
