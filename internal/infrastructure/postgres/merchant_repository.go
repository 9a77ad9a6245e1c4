package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledgersync/internal/domain/transaction"
)

// MerchantRepository implements transaction.MerchantRepository for PostgreSQL
type MerchantRepository struct {
	db *DB
}

func NewMerchantRepository(db *DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// FindOrCreate resolves the merchant in a single upsert, so concurrent
// importers converge on one row per (family, name).
func (r *MerchantRepository) FindOrCreate(ctx context.Context, familyID, name string) (*transaction.Merchant, error) {
	name = strings.TrimSpace(name)
	if familyID == "" || name == "" {
		return nil, fmt.Errorf("%w: family ID and merchant name are required", transaction.ErrInvalidInput)
	}

	query := `
		INSERT INTO merchants (id, family_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (family_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, family_id, name, created_at
	`

	var m transaction.Merchant
	err := r.db.QueryRowContext(ctx, query, uuid.NewString(), familyID, name).Scan(&m.ID, &m.FamilyID, &m.Name, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create merchant: %w", err)
	}
	return &m, nil
}
