package connection

import "time"

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun records one orchestrator invocation for a connection. Its terminal
// state is written exactly once.
type SyncRun struct {
	ID           string
	ConnectionID string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
}

// IsTerminal reports whether the run has reached completed or failed.
func (r *SyncRun) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
