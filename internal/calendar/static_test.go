package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStaticSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewStatic()
	s.AddCalendar(Calendar{ID: "personal", Name: "Personal"})

	cal, err := s.Calendar(ctx, "personal")
	if err != nil || cal.Name != "Personal" {
		t.Fatalf("Calendar() = %+v, %v", cal, err)
	}
	if _, err := s.Calendar(ctx, "nope"); !errors.Is(err, ErrCalendarNotFound) {
		t.Fatalf("Calendar(unknown) error = %v", err)
	}
	if _, err := s.Events(ctx, "nope", time.Time{}, time.Time{}, ""); !errors.Is(err, ErrCalendarNotFound) {
		t.Fatalf("Events(unknown) error = %v", err)
	}

	day := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	s.AddEvents("personal",
		Event{ID: "late", Title: "Standup late", Start: day.Add(15 * time.Hour)},
		Event{ID: "early", Title: "Standup early", Start: day.Add(9 * time.Hour)},
		Event{ID: "before", Title: "Standup y-day", Start: day.Add(-time.Hour)},
		Event{ID: "at-end", Title: "Standup next", Start: day.AddDate(0, 0, 1)},
		Event{ID: "other", Title: "Dentist", Start: day.Add(11 * time.Hour)},
	)

	got, err := s.Events(ctx, "personal", day, day.AddDate(0, 0, 1), "standup")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	// In-range, filtered, ordered by start.
	if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
		t.Fatalf("Events() = %+v", got)
	}

	// SetEvents replaces the previous list.
	s.SetEvents("personal", []Event{{ID: "only", Title: "Planning", Start: day.Add(10 * time.Hour)}})
	got, err = s.Events(ctx, "personal", day, day.AddDate(0, 0, 1), "")
	if err != nil || len(got) != 1 || got[0].ID != "only" {
		t.Fatalf("Events() after SetEvents = %+v, %v", got, err)
	}
}

func TestContainsFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s, substr string
		want      bool
	}{
		{"Daily Standup", "standup", true},
		{"daily standup", "STAND", true},
		{"Daily Standup", "", true},
		{"Retro", "standup", false},
		{"", "standup", false},
	}
	for _, tt := range tests {
		if got := ContainsFold(tt.s, tt.substr); got != tt.want {
			t.Fatalf("ContainsFold(%q, %q) = %v, want %v", tt.s, tt.substr, got, tt.want)
		}
	}
}
