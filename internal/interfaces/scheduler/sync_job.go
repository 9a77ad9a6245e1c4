package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
	syncsvc "ledgersync/internal/domain/sync"
)

// SyncRunner runs one sync cycle for a connection.
type SyncRunner interface {
	RunSync(ctx context.Context, connectionID string) (*syncsvc.Outcome, error)
}

// ConnectionLister lists the connections a scheduled sweep should cover.
type ConnectionLister interface {
	ListActive(ctx context.Context) ([]*connection.Connection, error)
}

// ConnectionSyncJob syncs a single connection.
type ConnectionSyncJob struct {
	connectionID string
	trigger      string
	runner       SyncRunner
	logger       *zap.Logger
}

// NewConnectionSyncJob creates a job; trigger names what enqueued it
// (schedule, webhook, manual).
func NewConnectionSyncJob(connectionID, trigger string, runner SyncRunner, logger *zap.Logger) *ConnectionSyncJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionSyncJob{
		connectionID: connectionID,
		trigger:      trigger,
		runner:       runner,
		logger:       logger,
	}
}

func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	logger := j.logger.With(zap.String("connection_id", j.connectionID), zap.String("trigger", j.trigger))

	outcome, err := j.runner.RunSync(ctx, j.connectionID)
	if err != nil {
		return fmt.Errorf("sync of connection %s failed: %w", j.connectionID, err)
	}
	if outcome == nil || outcome.Skipped {
		logger.Info("Sync skipped")
		return nil
	}

	var fields []zap.Field
	if outcome.Run != nil {
		fields = append(fields, zap.String("run_id", outcome.Run.ID))
	}
	if outcome.Accounts != nil {
		fields = append(fields, zap.Int("accounts_created", outcome.Accounts.Created))
	}
	if outcome.Transactions != nil {
		fields = append(fields,
			zap.Int("transactions_imported", outcome.Transactions.Imported),
			zap.Int("transactions_skipped", outcome.Transactions.Skipped),
			zap.Int("transactions_failed", outcome.Transactions.Failed),
		)
	}
	logger.Info("Sync completed", fields...)
	return nil
}

func (j *ConnectionSyncJob) Key() string {
	return j.connectionID
}

func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("%s sync of connection %s", j.trigger, j.connectionID)
}

// ActiveConnectionJobs returns a job provider that yields one sync job per
// active connection.
func ActiveConnectionJobs(connections ConnectionLister, runner SyncRunner, logger *zap.Logger) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		conns, err := connections.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active connections: %w", err)
		}

		jobs := make([]Job, 0, len(conns))
		for _, c := range conns {
			jobs = append(jobs, NewConnectionSyncJob(c.ID, "scheduled", runner, logger))
		}
		return jobs, nil
	}
}
