package yodlee

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the aggregator API client.
// sessionToken is the connection's opaque credential; the client derives the
// user-level access token from it.
type ClientInterface interface {
	GetAccounts(ctx context.Context, sessionToken string) ([]Account, error)
	GetTransactions(ctx context.Context, sessionToken string, from, to time.Time) ([]Transaction, error)
	GetInstitution(ctx context.Context, providerID string) (*Institution, error)
	EnsureUser(ctx context.Context, loginName, email string) error
}
