package calendar

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Static is an in-memory Source. It backs tests and lets the daemon serve
// fixture calendars declared directly in config, without any feed I/O.
type Static struct {
	mu     sync.RWMutex
	cals   map[string]Calendar
	events map[string][]Event
}

func NewStatic() *Static {
	return &Static{
		cals:   map[string]Calendar{},
		events: map[string][]Event{},
	}
}

// AddCalendar registers a calendar (upsert by id).
func (s *Static) AddCalendar(c Calendar) {
	s.mu.Lock()
	s.cals[c.ID] = c
	s.mu.Unlock()
}

// AddEvents appends events to a calendar. The calendar must exist.
func (s *Static) AddEvents(calendarID string, evs ...Event) {
	s.mu.Lock()
	s.events[calendarID] = append(s.events[calendarID], evs...)
	s.mu.Unlock()
}

// SetEvents replaces a calendar's event list.
func (s *Static) SetEvents(calendarID string, evs []Event) {
	s.mu.Lock()
	s.events[calendarID] = append([]Event(nil), evs...)
	s.mu.Unlock()
}

func (s *Static) Calendar(ctx context.Context, id string) (Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cals[id]
	if !ok {
		return Calendar{}, ErrCalendarNotFound
	}
	return c, nil
}

func (s *Static) Events(ctx context.Context, id string, start, end time.Time, textFilter string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.cals[id]; !ok {
		return nil, ErrCalendarNotFound
	}

	var out []Event
	for _, ev := range s.events[id] {
		if ev.Start.Before(start) || !ev.Start.Before(end) {
			continue
		}
		if !ContainsFold(ev.Title, textFilter) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

var _ Source = (*Static)(nil)
