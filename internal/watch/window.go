package watch

import (
	"time"

	"calwatch/internal/calendar"
)

// ComputeWindow returns the calendar-day window lying daysBefore days
// ahead of now in loc. The start is midnight of that day; the end is
// midnight of the following day (exclusive). AddDate keeps the window a
// full calendar day across daylight-saving transitions.
func ComputeWindow(now time.Time, daysBefore int, loc *time.Location) (start, end time.Time) {
	t := now.In(loc).AddDate(0, 0, daysBefore)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// Matches reports whether the event belongs to the window day and
// carries the substring in its title. The calendar source pre-filter is
// advisory only; this recheck is the authority. Date equality is
// evaluated in the window's location so multi-day or zone-shifted
// events that merely overlap the window do not qualify.
func Matches(ev calendar.Event, substring string, windowStart time.Time) bool {
	s := ev.Start.In(windowStart.Location())
	y1, m1, d1 := s.Date()
	y2, m2, d2 := windowStart.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return false
	}
	return calendar.ContainsFold(ev.Title, substring)
}
