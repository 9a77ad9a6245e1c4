package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/family"
)

// DefaultStaleAfter is how long a running lock is honoured before another
// trigger may reclaim it.
const DefaultStaleAfter = 2 * time.Hour

var (
	syncTracer      = otel.Tracer("ledgersync/sync")
	syncMeter       = otel.Meter("ledgersync/sync")
	syncRunTotal, _ = syncMeter.Int64Counter("sync.run.total", metric.WithDescription("Sync runs by final status"))
	syncRunSecs, _  = syncMeter.Float64Histogram("sync.run.duration", metric.WithDescription("Sync run duration in seconds"), metric.WithUnit("s"))
)

// Outcome describes one RunSync invocation.
type Outcome struct {
	// Skipped is set when no run was started: the connection was already
	// syncing or is scheduled for deletion.
	Skipped      bool
	Run          *connection.SyncRun
	Window       Window
	Accounts     *AccountImportResult
	Transactions *TransactionImportResult
}

// Config tunes the orchestrator.
type Config struct {
	Window     WindowPolicy
	StaleAfter time.Duration
}

// Dependencies are the collaborators of an Orchestrator. Institutions,
// Notifier and Alerter are optional.
type Dependencies struct {
	Connections  connection.Repository
	Runs         connection.SyncRunRepository
	Families     family.Repository
	Accounts     *AccountImporter
	Transactions *TransactionImporter
	Institutions *InstitutionRefresher
	Notifier     Notifier
	Alerter      Alerter
}

// Orchestrator drives one full sync cycle per connection.
type Orchestrator struct {
	connections  connection.Repository
	runs         connection.SyncRunRepository
	families     family.Repository
	accounts     *AccountImporter
	transactions *TransactionImporter
	institutions *InstitutionRefresher
	notifier     Notifier
	alerter      Alerter
	window       WindowPolicy
	staleAfter   time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Dependencies, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	window := cfg.Window
	if window.MaxHistoryDays <= 0 {
		window.MaxHistoryDays = DefaultMaxHistoryDays
	}
	if window.OverlapDays < 0 {
		window.OverlapDays = DefaultOverlapDays
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &Orchestrator{
		connections:  deps.Connections,
		runs:         deps.Runs,
		families:     deps.Families,
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		institutions: deps.Institutions,
		notifier:     notifier,
		alerter:      deps.Alerter,
		window:       window,
		staleAfter:   staleAfter,
		logger:       logger.Named("orchestrator"),
		now:          time.Now,
	}
}

// SetClock replaces the orchestrator's clock and those of its importers.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	if o.accounts != nil {
		o.accounts.now = now
	}
	if o.transactions != nil {
		o.transactions.now = now
	}
}

// RunSync runs one sync cycle for connectionID.
//
// A second call while the connection is running returns a skipped Outcome
// and a nil error without creating a SyncRun. Any failure inside the cycle
// marks the run failed, flags the connection requires_update and is
// returned so the caller's retry policy can decide what to do. Unknown
// connection ids return connection.ErrNotFound.
func (o *Orchestrator) RunSync(ctx context.Context, connectionID string) (*Outcome, error) {
	ctx, span := syncTracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("connection.id", connectionID),
	))
	defer span.End()

	logger := o.logger.With(zap.String("connection_id", connectionID))

	conn, err := o.connections.GetByID(ctx, connectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn.ScheduledForDeletion {
		logger.Info("Connection scheduled for deletion, not syncing")
		return &Outcome{Skipped: true}, nil
	}

	startedAt := o.now()
	lease, acquired, err := o.connections.TryBeginSync(ctx, conn.ID, startedAt.Add(-o.staleAfter))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		logger.Info("Sync already running, skipping")
		span.SetAttributes(attribute.Bool("sync.skipped", true))
		return &Outcome{Skipped: true}, nil
	}
	defer o.release(ctx, conn.ID, lease, logger)

	run, err := o.runs.Start(ctx, conn.ID, startedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	outcome := &Outcome{
		Run:    run,
		Window: o.window.Compute(conn.LastSyncedAt, startedAt),
	}
	logger = logger.With(zap.String("run_id", run.ID))
	logger.Info("Sync started",
		zap.Time("from", outcome.Window.From),
		zap.Time("to", outcome.Window.To),
	)

	if err := o.execute(ctx, conn, outcome, logger); err != nil {
		o.fail(ctx, conn, run, err, logger)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.record(ctx, connection.RunFailed, startedAt)
		return outcome, err
	}

	completedAt := o.now()
	if err := o.runs.Complete(ctx, run.ID, completedAt); err != nil {
		o.fail(ctx, conn, run, err, logger)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.record(ctx, connection.RunFailed, startedAt)
		return outcome, fmt.Errorf("failed to complete sync run: %w", err)
	}
	run.Status = connection.RunCompleted
	run.CompletedAt = &completedAt

	o.record(ctx, connection.RunCompleted, startedAt)
	logger.Info("Sync completed",
		zap.Int("accounts_created", outcome.Accounts.Created),
		zap.Int("transactions_imported", outcome.Transactions.Imported),
		zap.Duration("duration", completedAt.Sub(startedAt)),
	)
	return outcome, nil
}

// execute runs the cycle's steps in order, stopping at the first error.
func (o *Orchestrator) execute(ctx context.Context, conn *connection.Connection, outcome *Outcome, logger *zap.Logger) error {
	accounts, err := o.accounts.ImportAccounts(ctx, conn)
	if err != nil {
		return fmt.Errorf("account import failed: %w", err)
	}
	outcome.Accounts = accounts

	if o.institutions != nil && accounts.InstitutionID != "" {
		if err := o.institutions.Refresh(ctx, conn, accounts.InstitutionID); err != nil {
			logger.Warn("Institution refresh failed", zap.Error(err))
		}
	}

	transactions, err := o.transactions.ImportTransactions(ctx, conn, outcome.Window)
	if transactions != nil {
		outcome.Transactions = transactions
	}
	if err != nil {
		return fmt.Errorf("transaction import failed: %w", err)
	}

	for _, id := range accounts.LedgerAccountIDs {
		if err := o.notifier.AccountImported(ctx, id); err != nil {
			return fmt.Errorf("failed to notify account import: %w", err)
		}
	}

	if len(transactions.TransactionIDs) > 0 {
		fam, err := o.families.GetByID(ctx, conn.FamilyID)
		if err != nil {
			return fmt.Errorf("failed to get family: %w", err)
		}
		if fam.AutoCategorizeEnabled {
			if err := o.notifier.TransactionsImported(ctx, fam.ID, transactions.TransactionIDs); err != nil {
				return fmt.Errorf("failed to notify transaction import: %w", err)
			}
		}
	}

	syncedAt := o.now()
	if err := o.connections.MarkSynced(ctx, conn.ID, syncedAt); err != nil {
		return fmt.Errorf("failed to mark connection synced: %w", err)
	}
	conn.LastSyncedAt = &syncedAt
	conn.Status = connection.StatusGood
	return nil
}

// fail records a failed cycle. It runs even when ctx is already cancelled.
func (o *Orchestrator) fail(ctx context.Context, conn *connection.Connection, run *connection.SyncRun, cause error, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	logger.Error("Sync failed", zap.Error(cause))

	failedAt := o.now()
	if err := o.runs.Fail(ctx, run.ID, failedAt, cause.Error()); err != nil && !errors.Is(err, connection.ErrRunFinished) {
		logger.Error("Failed to mark sync run failed", zap.Error(err))
	} else {
		run.Status = connection.RunFailed
		run.CompletedAt = &failedAt
		run.Error = cause.Error()
	}

	if err := o.connections.SetStatus(ctx, conn.ID, connection.StatusRequiresUpdate); err != nil {
		logger.Error("Failed to flag connection", zap.Error(err))
	} else {
		conn.Status = connection.StatusRequiresUpdate
	}

	if o.alerter != nil {
		if err := o.alerter.NotifyConnectionNeedsAttention(ctx, conn.FamilyID, conn.Name); err != nil {
			logger.Warn("Failed to send attention notice", zap.Error(err))
		}
	}
}

// release ends this run's hold on the lock. A run that outlived the stale
// window may find its lock taken over; the new holder keeps it.
func (o *Orchestrator) release(ctx context.Context, connectionID, lease string, logger *zap.Logger) {
	err := o.connections.EndSync(context.WithoutCancel(ctx), connectionID, lease)
	switch {
	case errors.Is(err, connection.ErrSyncLockLost):
		logger.Warn("Sync lock was taken over by another run, leaving it held")
	case err != nil:
		logger.Error("Failed to release sync lock", zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, status connection.RunStatus, startedAt time.Time) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	syncRunTotal.Add(ctx, 1, attrs)
	syncRunSecs.Record(ctx, o.now().Sub(startedAt).Seconds(), attrs)
}
