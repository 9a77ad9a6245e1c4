package http

import (
	"context"

	"ledgersync/internal/domain/connection"
	syncsvc "ledgersync/internal/domain/sync"
	"ledgersync/internal/interfaces/scheduler"
)

// MockTargets implements TargetResolver for testing
type MockTargets struct {
	TargetsFunc func(ctx context.Context, ids []string) ([]*connection.Connection, error)
}

func (m *MockTargets) Targets(ctx context.Context, ids []string) ([]*connection.Connection, error) {
	if m.TargetsFunc != nil {
		return m.TargetsFunc(ctx, ids)
	}
	return nil, nil
}

// MockSubmitter implements JobSubmitter and records what it accepted
type MockSubmitter struct {
	SubmitFunc func(job scheduler.Job) error
	Jobs       []scheduler.Job
}

func (m *MockSubmitter) Submit(job scheduler.Job) error {
	if m.SubmitFunc != nil {
		if err := m.SubmitFunc(job); err != nil {
			return err
		}
	}
	m.Jobs = append(m.Jobs, job)
	return nil
}

// MockConnections implements ConnectionGetter for testing
type MockConnections struct {
	GetByIDFunc func(ctx context.Context, id string) (*connection.Connection, error)
}

func (m *MockConnections) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, connection.ErrNotFound
}

// MockRunner implements scheduler.SyncRunner for testing
type MockRunner struct {
	RunSyncFunc func(ctx context.Context, connectionID string) (*syncsvc.Outcome, error)
}

func (m *MockRunner) RunSync(ctx context.Context, connectionID string) (*syncsvc.Outcome, error) {
	if m.RunSyncFunc != nil {
		return m.RunSyncFunc(ctx, connectionID)
	}
	return &syncsvc.Outcome{}, nil
}
