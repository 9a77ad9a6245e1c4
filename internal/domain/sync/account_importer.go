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
	"ledgersync/internal/domain/family"
	"ledgersync/internal/domain/mapping"
	"ledgersync/internal/infrastructure/yodlee"
)

// AccountImportResult contains the results of one account import.
type AccountImportResult struct {
	Found     int // accounts reported by the provider
	Imported  int // snapshots upserted
	Created   int // ledger accounts created and linked
	Refreshed int // linked ledger accounts whose metadata was refreshed

	// LedgerAccountIDs lists every ledger account touched by the import.
	LedgerAccountIDs []string

	// InstitutionID is the first provider institution id seen in the batch.
	InstitutionID string

	Errors []string
}

// AccountImporter upserts external account snapshots and creates or
// refreshes the ledger accounts linked to them.
type AccountImporter struct {
	client    AccountSource
	snapshots account.SnapshotRepository
	ledger    account.LedgerRepository
	families  family.Repository
	kinds     mapping.TypeMapper
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountImporter creates a new account importer
func NewAccountImporter(
	client AccountSource,
	snapshots account.SnapshotRepository,
	ledger account.LedgerRepository,
	families family.Repository,
	kinds mapping.TypeMapper,
	logger *zap.Logger,
) *AccountImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountImporter{
		client:    client,
		snapshots: snapshots,
		ledger:    ledger,
		families:  families,
		kinds:     kinds,
		logger:    logger.Named("account_importer"),
		now:       time.Now,
	}
}

// ImportAccounts fetches the connection's accounts and persists them.
// A failure on one account is recorded and the batch continues; only a
// failed fetch or an unknown family aborts the import.
func (i *AccountImporter) ImportAccounts(ctx context.Context, conn *connection.Connection) (*AccountImportResult, error) {
	if conn.SessionToken == "" {
		return nil, connection.ErrMissingSession
	}

	fam, err := i.families.GetByID(ctx, conn.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	accounts, err := i.client.GetAccounts(ctx, conn.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	logger := i.logger.With(zap.String("connection_id", conn.ID))
	result := &AccountImportResult{
		Found:  len(accounts),
		Errors: []string{},
	}
	logger.Info("Fetched accounts", zap.Int("count", result.Found))

	syncedAt := i.now()
	for idx := range accounts {
		acc := &accounts[idx]
		if err := i.importAccount(ctx, conn, fam, acc, syncedAt, result); err != nil {
			errMsg := fmt.Sprintf("failed to import account %s: %v", acc.ID, err)
			result.Errors = append(result.Errors, errMsg)
			logger.Warn("Skipping account", zap.String("external_account_id", acc.ID.String()), zap.Error(err))
		}
	}

	logger.Info("Account import completed",
		zap.Int("found", result.Found),
		zap.Int("imported", result.Imported),
		zap.Int("created", result.Created),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (i *AccountImporter) importAccount(
	ctx context.Context,
	conn *connection.Connection,
	fam *family.Family,
	acc *yodlee.Account,
	syncedAt time.Time,
	result *AccountImportResult,
) error {
	if acc.Err != nil {
		return acc.Err
	}
	if acc.ID == "" {
		return errors.New("account has no external id")
	}

	raw := acc.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(acc); err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	snap, err := i.snapshots.Upsert(ctx, account.UpsertSnapshotParams{
		ConnectionID:      conn.ID,
		ExternalAccountID: acc.ID.String(),
		ProviderAccountID: acc.ProviderAccountID.String(),
		RawPayload:        raw,
		SyncedAt:          syncedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	result.Imported++

	details := acc.Details
	if result.InstitutionID == "" && details.ProviderID != "" {
		result.InstitutionID = string(details.ProviderID)
	}

	currency := details.CurrencyOr(fam.Currency)

	if snap.IsLinked() {
		// Balances belong to balance processing; only metadata is refreshed here.
		err := i.ledger.RefreshMetadata(ctx, *snap.LedgerAccountID, account.MetadataParams{
			Mask:     details.Mask(),
			Currency: currency,
			SyncedAt: syncedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to refresh ledger account: %w", err)
		}
		result.Refreshed++
		result.LedgerAccountIDs = append(result.LedgerAccountIDs, *snap.LedgerAccountID)
		return nil
	}

	kindType := i.kinds.AccountKind(details.Container, details.AccountType)
	params := account.CreateParams{
		FamilyID:        conn.FamilyID,
		SnapshotID:      snap.ID,
		Name:            accountName(details),
		Mask:            details.Mask(),
		InstitutionName: details.ProviderName,
		Currency:        currency,
		Kind:            account.BuildKind(kindType, details),
		ExternalID:      snap.ExternalAccountID,
		SyncedAt:        syncedAt,
	}
	if balance := details.BalanceMinor(); balance != nil {
		params.BalanceMinor = *balance
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid ledger account: %w", err)
	}

	ledgerAccount, err := i.ledger.CreateForSnapshot(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create ledger account: %w", err)
	}
	if err := i.snapshots.Link(ctx, snap.ID, ledgerAccount.ID); err != nil {
		return fmt.Errorf("failed to link snapshot: %w", err)
	}

	i.logger.Info("Created ledger account",
		zap.String("connection_id", conn.ID),
		zap.String("ledger_account_id", ledgerAccount.ID),
		zap.String("kind", string(kindType)),
		zap.String("mask", params.Mask),
	)

	result.Created++
	result.LedgerAccountIDs = append(result.LedgerAccountIDs, ledgerAccount.ID)
	return nil
}

func accountName(d account.Details) string {
	if d.AccountName != "" {
		return d.AccountName
	}
	if d.ProviderName != "" {
		if mask := d.Mask(); mask != "" {
			return d.ProviderName + " " + mask
		}
		return d.ProviderName
	}
	return "Linked account"
}
