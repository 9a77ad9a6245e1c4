package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/mapping"
	"ledgersync/internal/domain/transaction"
	"ledgersync/internal/infrastructure/yodlee"
)

// TransactionImportResult contains the results of one transaction import.
type TransactionImportResult struct {
	Accounts int // linked accounts processed
	Fetched  int // provider transactions matched to a processed account
	Imported int
	Skipped  int // already imported
	Failed   int

	// TransactionIDs lists the ledger ids of newly imported transactions.
	TransactionIDs []string

	Errors []string
}

// TransactionImporter fetches, deduplicates, normalizes and persists
// transactions for a connection's linked accounts.
type TransactionImporter struct {
	client       TransactionSource
	snapshots    account.SnapshotRepository
	ledger       account.LedgerRepository
	transactions transaction.Repository
	merchants    transaction.MerchantRepository
	categories   mapping.CategoryMapper
	pacer        Pacer
	logger       *zap.Logger
	now          func() time.Time
}

// NewTransactionImporter creates a new transaction importer. A nil pacer
// disables pacing.
func NewTransactionImporter(
	client TransactionSource,
	snapshots account.SnapshotRepository,
	ledger account.LedgerRepository,
	transactions transaction.Repository,
	merchants transaction.MerchantRepository,
	categories mapping.CategoryMapper,
	pacer Pacer,
	logger *zap.Logger,
) *TransactionImporter {
	if pacer == nil {
		pacer = SleepPacer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionImporter{
		client:       client,
		snapshots:    snapshots,
		ledger:       ledger,
		transactions: transactions,
		merchants:    merchants,
		categories:   categories,
		pacer:        pacer,
		logger:       logger.Named("transaction_importer"),
		now:          time.Now,
	}
}

// ImportTransactions imports the window's transactions for every linked
// account of the connection. Unlinked snapshots are never fetched for.
//
// Per-transaction failures are recorded and never abort the batch. A failed
// provider fetch aborts the import so the whole cycle can be retried.
func (i *TransactionImporter) ImportTransactions(ctx context.Context, conn *connection.Connection, window Window) (*TransactionImportResult, error) {
	if conn.SessionToken == "" {
		return nil, connection.ErrMissingSession
	}

	linked, err := i.snapshots.ListLinkedByConnection(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	logger := i.logger.With(zap.String("connection_id", conn.ID))
	result := &TransactionImportResult{Errors: []string{}}

	fetches := 0
	for _, snap := range linked {
		if !snap.IsLinked() {
			continue
		}

		ledgerAccount, err := i.ledger.GetByID(ctx, *snap.LedgerAccountID)
		if err != nil {
			errMsg := fmt.Sprintf("failed to load ledger account %s: %v", *snap.LedgerAccountID, err)
			result.Errors = append(result.Errors, errMsg)
			logger.Warn("Skipping account", zap.String("snapshot_id", snap.ID), zap.Error(err))
			continue
		}

		if fetches > 0 {
			if err := i.pacer.Pace(ctx); err != nil {
				return result, fmt.Errorf("pacing interrupted: %w", err)
			}
		}
		fetches++

		txs, err := i.client.GetTransactions(ctx, conn.SessionToken, window.From, window.To)
		if err != nil {
			return result, fmt.Errorf("failed to fetch transactions for account %s: %w", snap.ExternalAccountID, err)
		}
		result.Accounts++

		for idx := range txs {
			tx := &txs[idx]
			// The provider returns the whole connection's transactions.
			if tx.AccountID.String() != snap.ExternalAccountID {
				continue
			}
			result.Fetched++

			if err := i.importTransaction(ctx, ledgerAccount, tx, result); err != nil {
				result.Failed++
				errMsg := fmt.Sprintf("failed to import transaction %s: %v", tx.ID, err)
				result.Errors = append(result.Errors, errMsg)
				logger.Warn("Skipping transaction",
					zap.String("external_id", tx.ID.String()),
					zap.String("ledger_account_id", ledgerAccount.ID),
					zap.Error(err),
				)
			}
		}
	}

	logger.Info("Transaction import completed",
		zap.Int("accounts", result.Accounts),
		zap.Int("fetched", result.Fetched),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

func (i *TransactionImporter) importTransaction(
	ctx context.Context,
	ledgerAccount *account.LedgerAccount,
	tx *yodlee.Transaction,
	result *TransactionImportResult,
) error {
	if tx.Err != nil {
		return tx.Err
	}
	externalID := tx.ID.String()
	if externalID == "" {
		return errors.New("transaction has no external id")
	}

	amount, err := tx.AmountMinor()
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	exists, err := i.transactions.ExistsByExternalID(ctx, ledgerAccount.ID, externalID)
	if err != nil {
		return fmt.Errorf("failed to check existing transaction: %w", err)
	}
	if exists {
		result.Skipped++
		return nil
	}

	date, err := tx.GetDate()
	if err != nil {
		date = truncateDay(i.now())
		i.logger.Warn("Unparseable transaction date, using today",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
	}

	description := tx.DescriptionText()
	if description == "" {
		description = transaction.PlaceholderDescription
	}

	currency := tx.Currency()
	if currency == "" {
		currency = ledgerAccount.Currency
	}

	params := transaction.CreateParams{
		LedgerAccountID: ledgerAccount.ID,
		ExternalID:      externalID,
		AmountMinor:     amount,
		Currency:        currency,
		Date:            date,
		Description:     description,
		Notes:           tx.Notes(),
		Category:        i.categories.Category(tx.CategoryKey()),
		RawPayload:      rawTransaction(tx),
	}

	if name := tx.MerchantName(); name != "" {
		merchant, err := i.merchants.FindOrCreate(ctx, ledgerAccount.FamilyID, name)
		if err != nil {
			return fmt.Errorf("failed to resolve merchant: %w", err)
		}
		params.MerchantID = &merchant.ID
	}

	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	created, err := i.transactions.Create(ctx, params)
	if errors.Is(err, transaction.ErrDuplicate) {
		// A concurrent run imported it first.
		result.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	result.Imported++
	result.TransactionIDs = append(result.TransactionIDs, created.ID)
	return nil
}

func rawTransaction(tx *yodlee.Transaction) json.RawMessage {
	if len(tx.Raw) > 0 {
		return tx.Raw
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil
	}
	return raw
}
