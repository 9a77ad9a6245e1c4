package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledgersync/internal/domain/connection"
)

// SyncRunRepository implements connection.SyncRunRepository for PostgreSQL
type SyncRunRepository struct {
	db *DB
}

// NewSyncRunRepository creates a new PostgreSQL sync run repository
func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func scanSyncRun(row rowScanner) (*connection.SyncRun, error) {
	var run connection.SyncRun
	var completedAt sql.NullTime
	var reason sql.NullString

	if err := row.Scan(&run.ID, &run.ConnectionID, &run.Status, &run.StartedAt, &completedAt, &reason); err != nil {
		return nil, err
	}
	run.CompletedAt = timePtr(completedAt)
	run.Error = reason.String
	return &run, nil
}

// Start opens a running sync run
func (r *SyncRunRepository) Start(ctx context.Context, connectionID string, at time.Time) (*connection.SyncRun, error) {
	query := `
		INSERT INTO sync_runs (id, connection_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, connection_id, status, started_at, completed_at, error
	`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, uuid.NewString(), connectionID, connection.RunRunning, at))
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}
	return run, nil
}

// Complete marks a running run completed
func (r *SyncRunRepository) Complete(ctx context.Context, id string, at time.Time) error {
	return r.finish(ctx, id, connection.RunCompleted, at, "")
}

// Fail marks a running run failed with reason
func (r *SyncRunRepository) Fail(ctx context.Context, id string, at time.Time, reason string) error {
	return r.finish(ctx, id, connection.RunFailed, at, reason)
}

func (r *SyncRunRepository) finish(ctx context.Context, id string, status connection.RunStatus, at time.Time, reason string) error {
	query := `
		UPDATE sync_runs
		SET status = $2, completed_at = $3, error = $4
		WHERE id = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query, id, status, at, nullString(reason), connection.RunRunning)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sync_runs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sync run: %w", err)
	}
	if !exists {
		return connection.ErrRunNotFound
	}
	return connection.ErrRunFinished
}

// LatestForConnection returns the most recently started run of a connection
func (r *SyncRunRepository) LatestForConnection(ctx context.Context, connectionID string) (*connection.SyncRun, error) {
	query := `
		SELECT id, connection_id, status, started_at, completed_at, error
		FROM sync_runs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, connectionID))
	if err == sql.ErrNoRows {
		return nil, connection.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	return run, nil
}
