package connection

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the user-visible health of a connection.
type Status string

const (
	StatusGood           Status = "good"
	StatusRequiresUpdate Status = "requires_update"
)

// SyncState guards against concurrent sync cycles for the same connection.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateRunning SyncState = "running"
)

// Domain errors
var (
	ErrNotFound       = errors.New("connection not found")
	ErrRunNotFound    = errors.New("sync run not found")
	ErrRunFinished    = errors.New("sync run already finished")
	ErrInvalidStatus  = errors.New("invalid connection status")
	ErrMissingSession = errors.New("connection has no session token")
	ErrSyncLockLost   = errors.New("sync lock is held by another run")
)

// Connection is one linked relationship between a family and an institution
// at the aggregator.
type Connection struct {
	ID                   string
	FamilyID             string
	Name                 string
	ProviderID           string
	SessionToken         string `json:"-"`
	Status               Status
	SyncState            SyncState
	SyncStartedAt        *time.Time
	LastSyncedAt         *time.Time
	ScheduledForDeletion bool
	Institution          Institution
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Institution is the last institution snapshot fetched for a connection.
type Institution struct {
	ID         string
	URL        string
	Color      string
	LogoURL    string
	RawPayload json.RawMessage
}

// IsActive reports whether the connection may be synced.
func (c *Connection) IsActive() bool {
	return !c.ScheduledForDeletion
}

// IsSyncing reports whether a sync cycle currently holds the connection.
func (c *Connection) IsSyncing() bool {
	return c.SyncState == SyncStateRunning
}

// CreateParams contains parameters for creating a connection after a
// successful linking flow.
type CreateParams struct {
	FamilyID     string
	Name         string
	ProviderID   string
	SessionToken string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.FamilyID == "" {
		return errors.New("family ID is required")
	}
	if p.Name == "" {
		return errors.New("connection name is required")
	}
	if p.SessionToken == "" {
		return ErrMissingSession
	}
	return nil
}

// IsValidStatus checks if a status string is a known connection status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusGood, StatusRequiresUpdate:
		return true
	}
	return false
}
