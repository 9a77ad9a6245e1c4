package connection

import (
	"context"
	"time"
)

// Repository defines data access for connections.
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Connection, error)

	// GetByID returns ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Connection, error)

	// ListActive returns every connection not scheduled for deletion.
	ListActive(ctx context.Context) ([]*Connection, error)

	// ListActiveByProviderAccountIDs returns active connections whose provider id,
	// or one of whose account snapshots, matches any of the given identifiers.
	ListActiveByProviderAccountIDs(ctx context.Context, ids []string) ([]*Connection, error)

	// ListNeedingUpdate returns active connections in StatusRequiresUpdate.
	ListNeedingUpdate(ctx context.Context) ([]*Connection, error)

	// TryBeginSync atomically moves the connection from idle to running. A
	// running lock that started before staleBefore is treated as idle.
	// Returns false when another sync holds the connection; otherwise the
	// returned lease identifies this holder to EndSync.
	TryBeginSync(ctx context.Context, id string, staleBefore time.Time) (lease string, acquired bool, err error)

	// EndSync releases the running lock if lease still holds it. Returns
	// ErrSyncLockLost when the lock was taken over after going stale.
	EndSync(ctx context.Context, id, lease string) error

	// MarkSynced records a successful cycle and clears any error status.
	MarkSynced(ctx context.Context, id string, at time.Time) error

	SetStatus(ctx context.Context, id string, status Status) error

	UpdateInstitution(ctx context.Context, id string, inst Institution) error

	// ScheduleDeletion soft-deletes the connection.
	ScheduleDeletion(ctx context.Context, id string) error
}

// SyncRunRepository defines data access for sync runs.
type SyncRunRepository interface {
	Start(ctx context.Context, connectionID string, at time.Time) (*SyncRun, error)

	// Complete and Fail only transition a running run; a finished run yields ErrRunFinished.
	Complete(ctx context.Context, id string, at time.Time) error
	Fail(ctx context.Context, id string, at time.Time, reason string) error

	LatestForConnection(ctx context.Context, connectionID string) (*SyncRun, error)
}
