package family

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("family not found")

// Family is the owning household of connections and ledger accounts.
type Family struct {
	ID                    string
	Name                  string
	Currency              string
	AutoCategorizeEnabled bool
}

// Repository defines read access to families.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Family, error)
}
