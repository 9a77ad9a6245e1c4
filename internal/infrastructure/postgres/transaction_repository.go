package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ledgersync/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, ledger_account_id, external_id, amount_minor, currency, date, description,
	notes, category, merchant_id, raw_payload, created_at`

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var notes, merchantID sql.NullString
	var raw []byte

	err := row.Scan(
		&tx.ID, &tx.LedgerAccountID, &tx.ExternalID, &tx.AmountMinor, &tx.Currency, &tx.Date,
		&tx.Description, &notes, &tx.Category, &merchantID, &raw, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Notes = notes.String
	tx.MerchantID = stringPtr(merchantID)
	if len(raw) > 0 {
		tx.RawPayload = json.RawMessage(raw)
	}
	return &tx, nil
}

// ExistsByExternalID checks whether externalID was already imported into the ledger account
func (r *TransactionRepository) ExistsByExternalID(ctx context.Context, ledgerAccountID, externalID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM imported_transactions WHERE ledger_account_id = $1 AND external_id = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ledgerAccountID, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// Create inserts an imported transaction. A concurrent insert of the same
// (ledger account, external id) pair yields transaction.ErrDuplicate.
func (r *TransactionRepository) Create(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", transaction.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO imported_transactions (
			id, ledger_account_id, external_id, amount_minor, currency, date,
			description, notes, category, merchant_id, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ledger_account_id, external_id) DO NOTHING
		RETURNING ` + transactionColumns

	var merchantID sql.NullString
	if params.MerchantID != nil {
		merchantID = nullString(*params.MerchantID)
	}

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.LedgerAccountID, params.ExternalID, params.AmountMinor, params.Currency,
		params.Date, params.Description, nullString(params.Notes), params.Category, merchantID, jsonb(params.RawPayload),
	))
	if err == sql.ErrNoRows || isUniqueViolation(err) {
		return nil, transaction.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// ListByLedgerAccount returns the account's transactions, newest first
func (r *TransactionRepository) ListByLedgerAccount(ctx context.Context, ledgerAccountID string) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM imported_transactions
		WHERE ledger_account_id = $1
		ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ledgerAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}
