package sync

import "time"

const (
	DefaultMaxHistoryDays = 90
	DefaultOverlapDays    = 7
)

// Window is the inclusive date range of one transaction fetch.
type Window struct {
	From time.Time
	To   time.Time
}

// WindowPolicy bounds how far back a sync cycle fetches transactions.
type WindowPolicy struct {
	MaxHistoryDays int
	OverlapDays    int
}

// DefaultWindowPolicy returns the 90 day cap with a 7 day overlap.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{MaxHistoryDays: DefaultMaxHistoryDays, OverlapDays: DefaultOverlapDays}
}

// Compute returns the fetch window for a connection last synced at lastSyncedAt.
//
// A first sync starts MaxHistoryDays before today. Later syncs start
// OverlapDays before the last sync's date, but never earlier than the
// history cap. The window always ends today.
func (p WindowPolicy) Compute(lastSyncedAt *time.Time, now time.Time) Window {
	today := truncateDay(now)
	floor := today.AddDate(0, 0, -p.MaxHistoryDays)

	if lastSyncedAt == nil || lastSyncedAt.IsZero() {
		return Window{From: floor, To: today}
	}

	from := truncateDay(*lastSyncedAt).AddDate(0, 0, -p.OverlapDays)
	if from.Before(floor) {
		from = floor
	}
	if from.After(today) {
		from = today
	}
	return Window{From: from, To: today}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
