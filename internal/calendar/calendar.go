package calendar

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCalendarNotFound is returned by Source implementations when the
// requested calendar id is unknown to them.
var ErrCalendarNotFound = errors.New("calendar not found")

// Event is a single concrete event instance as seen by the watcher.
// Recurring events are expanded by the source; every instance carries the
// same ID but its own Start.
type Event struct {
	ID     string
	Title  string
	Start  time.Time
	AllDay bool
}

// Calendar describes one queryable calendar.
type Calendar struct {
	ID   string
	Name string
}

// Source is a read-only view over one or more calendars.
//
// Events applies textFilter as a best-effort pre-filter only; providers may
// match more broadly (different case folding, range overlap for multi-day
// events). Callers own the authoritative recheck.
type Source interface {
	// Calendar resolves an id to its descriptor, or ErrCalendarNotFound.
	Calendar(ctx context.Context, id string) (Calendar, error)

	// Events lists event instances starting within [start, end),
	// pre-filtered by textFilter (case-insensitive containment).
	Events(ctx context.Context, id string, start, end time.Time, textFilter string) ([]Event, error)
}

// ContainsFold reports whether s contains substr ignoring case.
// Shared by sources and by the match recheck so both agree on folding.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
