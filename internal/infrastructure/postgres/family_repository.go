package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledgersync/internal/domain/family"
)

// FamilyRepository implements family.Repository for PostgreSQL
type FamilyRepository struct {
	db *DB
}

func NewFamilyRepository(db *DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

func (r *FamilyRepository) GetByID(ctx context.Context, id string) (*family.Family, error) {
	query := `SELECT id, name, currency, auto_categorize_enabled FROM families WHERE id = $1`

	var f family.Family
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Name, &f.Currency, &f.AutoCategorizeEnabled)
	if err == sql.ErrNoRows {
		return nil, family.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return &f, nil
}
