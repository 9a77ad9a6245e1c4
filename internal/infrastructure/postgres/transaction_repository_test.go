package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"ledgersync/internal/domain/transaction"
)

var transactionRowColumns = []string{
	"id", "ledger_account_id", "external_id", "amount_minor", "currency", "date", "description",
	"notes", "category", "merchant_id", "raw_payload", "created_at",
}

func transactionParams() transaction.CreateParams {
	merchantID := "m-1"
	return transaction.CreateParams{
		LedgerAccountID: "la-1",
		ExternalID:      "tx-1",
		AmountMinor:     -2500,
		Currency:        "USD",
		Date:            time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Description:     "Starbucks",
		Category:        "dining",
		MerchantID:      &merchantID,
		RawPayload:      []byte(`{"id":"tx-1"}`),
	}
}

func TestTransactionRepository_Create(t *testing.T) {
	params := transactionParams()

	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "inserted",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO imported_transactions .+ ON CONFLICT \(ledger_account_id, external_id\) DO NOTHING`).
					WithArgs(sqlmock.AnyArg(), "la-1", "tx-1", int64(-2500), "USD", params.Date,
						"Starbucks", nil, "dining", "m-1", []byte(`{"id":"tx-1"}`)).
					WillReturnRows(sqlmock.NewRows(transactionRowColumns).AddRow(
						"t-1", "la-1", "tx-1", int64(-2500), "USD", params.Date, "Starbucks",
						nil, "dining", "m-1", []byte(`{"id":"tx-1"}`), time.Now(),
					))
			},
		},
		{
			name: "conflict on insert",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO imported_transactions`).WillReturnError(sql.ErrNoRows)
			},
			wantErr: transaction.ErrDuplicate,
		},
		{
			name: "unique violation",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO imported_transactions`).
					WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
			},
			wantErr: transaction.ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.mockSetup(mock)

			tx, err := NewTransactionRepository(db).Create(context.Background(), params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if !tx.IsOutflow() || tx.MerchantID == nil || *tx.MerchantID != "m-1" || tx.Notes != "" {
				t.Errorf("Create() = %+v", tx)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestTransactionRepository_CreateInvalid(t *testing.T) {
	db, mock := newMockDB(t)
	params := transactionParams()
	params.Description = ""

	_, err := NewTransactionRepository(db).Create(context.Background(), params)
	if !errors.Is(err, transaction.ErrInvalidInput) {
		t.Fatalf("Create() error = %v, want ErrInvalidInput", err)
	}
	expectationsMet(t, mock)
}

func TestTransactionRepository_ExistsByExternalID(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM imported_transactions WHERE ledger_account_id = \$1 AND external_id = \$2\)`).
		WithArgs("la-1", "tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewTransactionRepository(db).ExistsByExternalID(context.Background(), "la-1", "tx-1")
	if err != nil || !ok {
		t.Fatalf("ExistsByExternalID() = %v, %v; want true", ok, err)
	}
	expectationsMet(t, mock)
}

func TestTransactionRepository_ListByLedgerAccount(t *testing.T) {
	db, mock := newMockDB(t)
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM imported_transactions\s+WHERE ledger_account_id = \$1\s+ORDER BY date DESC`).
		WithArgs("la-1").
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow("t-2", "la-1", "tx-2", int64(500000), "USD", day, "Payroll", "ACME PAYROLL", "income", nil, nil, day).
			AddRow("t-1", "la-1", "tx-1", int64(-2500), "USD", day.AddDate(0, 0, -1), "Starbucks", nil, "dining", "m-1", nil, day))

	txs, err := NewTransactionRepository(db).ListByLedgerAccount(context.Background(), "la-1")
	if err != nil {
		t.Fatalf("ListByLedgerAccount() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].Notes != "ACME PAYROLL" || txs[0].MerchantID != nil || txs[0].RawPayload != nil {
		t.Errorf("first transaction = %+v", txs[0])
	}
	expectationsMet(t, mock)
}
