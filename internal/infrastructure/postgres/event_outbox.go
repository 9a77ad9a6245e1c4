package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds written to sync_events.
const (
	EventAccountImported      = "account_imported"
	EventTransactionsImported = "transactions_imported"
)

// Event is one pending downstream notification.
type Event struct {
	ID        string
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type accountImportedPayload struct {
	LedgerAccountID string `json:"ledger_account_id"`
}

type transactionsImportedPayload struct {
	FamilyID       string   `json:"family_id"`
	TransactionIDs []string `json:"transaction_ids"`
}

// EventOutbox hands sync results to the ledger's background workers by
// writing rows they poll. It implements the sync Notifier port.
type EventOutbox struct {
	db *DB
}

func NewEventOutbox(db *DB) *EventOutbox {
	return &EventOutbox{db: db}
}

// AccountImported queues balance recomputation for a ledger account.
func (o *EventOutbox) AccountImported(ctx context.Context, ledgerAccountID string) error {
	return o.insert(ctx, EventAccountImported, accountImportedPayload{LedgerAccountID: ledgerAccountID})
}

// TransactionsImported queues auto-categorization of freshly imported transactions.
func (o *EventOutbox) TransactionsImported(ctx context.Context, familyID string, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	return o.insert(ctx, EventTransactionsImported, transactionsImportedPayload{
		FamilyID:       familyID,
		TransactionIDs: transactionIDs,
	})
}

func (o *EventOutbox) insert(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}

	query := `INSERT INTO sync_events (id, kind, payload) VALUES ($1, $2, $3)`
	if _, err := o.db.ExecContext(ctx, query, uuid.NewString(), kind, body); err != nil {
		return fmt.Errorf("failed to write %s event: %w", kind, err)
	}
	return nil
}

// Pending returns up to limit unprocessed events, oldest first.
func (o *EventOutbox) Pending(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, kind, payload, created_at
		FROM sync_events
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := o.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
