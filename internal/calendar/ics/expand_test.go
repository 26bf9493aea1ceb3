package ics

import (
	"testing"
	"time"
)

func ts(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestExpandSingleEvent(t *testing.T) {
	t.Parallel()

	ev := parsedEvent{uid: "ev-1", summary: "Standup", start: ts(4, 9)}

	got := expand([]parsedEvent{ev}, ts(4, 0), ts(5, 0), time.UTC, 100)
	if len(got) != 1 {
		t.Fatalf("expand() = %v, want one instance", got)
	}
	if got[0].ID != "ev-1" || !got[0].Start.Equal(ts(4, 9)) {
		t.Fatalf("instance = %+v", got[0])
	}

	// Outside the window, before and after.
	if got := expand([]parsedEvent{ev}, ts(5, 0), ts(6, 0), time.UTC, 100); len(got) != 0 {
		t.Fatalf("expand() past window = %v", got)
	}
	if got := expand([]parsedEvent{ev}, ts(1, 0), ts(4, 0), time.UTC, 100); len(got) != 0 {
		t.Fatalf("expand() before window = %v", got)
	}
	// The window start itself is included, the end is not.
	if got := expand([]parsedEvent{ev}, ts(4, 9), ts(5, 0), time.UTC, 100); len(got) != 1 {
		t.Fatalf("expand() at inclusive start = %v", got)
	}
	if got := expand([]parsedEvent{ev}, ts(3, 0), ts(4, 9), time.UTC, 100); len(got) != 0 {
		t.Fatalf("expand() at exclusive end = %v", got)
	}
}

func TestExpandDailyRecurrence(t *testing.T) {
	t.Parallel()

	ev := parsedEvent{
		uid:      "ev-daily",
		summary:  "Daily Standup",
		start:    ts(1, 9),
		rawRRule: "FREQ=DAILY;COUNT=10",
	}

	got := expand([]parsedEvent{ev}, ts(4, 0), ts(5, 0), time.UTC, 100)
	if len(got) != 1 {
		t.Fatalf("expand() = %v, want the single Jan 4 occurrence", got)
	}
	if !got[0].Start.Equal(ts(4, 9)) {
		t.Fatalf("occurrence start = %v, want %v", got[0].Start, ts(4, 9))
	}

	// A wider window yields one instance per day, in window order.
	got = expand([]parsedEvent{ev}, ts(2, 0), ts(6, 0), time.UTC, 100)
	if len(got) != 4 {
		t.Fatalf("expand() over four days = %d instances, want 4", len(got))
	}
	for i, inst := range got {
		if !inst.Start.Equal(ts(2+i, 9)) {
			t.Fatalf("instance[%d] = %v", i, inst.Start)
		}
	}

	// COUNT bounds the series; past its end nothing comes back.
	if got := expand([]parsedEvent{ev}, ts(12, 0), ts(20, 0), time.UTC, 100); len(got) != 0 {
		t.Fatalf("expand() past COUNT = %v", got)
	}
}

func TestExpandAppliesExDates(t *testing.T) {
	t.Parallel()

	ev := parsedEvent{
		uid:      "ev-daily",
		summary:  "Daily Standup",
		start:    ts(1, 9),
		rawRRule: "FREQ=DAILY;COUNT=10",
		exDates:  []time.Time{ts(4, 9)},
	}

	if got := expand([]parsedEvent{ev}, ts(4, 0), ts(5, 0), time.UTC, 100); len(got) != 0 {
		t.Fatalf("excluded occurrence still expanded: %v", got)
	}
	// Neighboring days are unaffected.
	if got := expand([]parsedEvent{ev}, ts(5, 0), ts(6, 0), time.UTC, 100); len(got) != 1 {
		t.Fatalf("day after exclusion = %v, want 1", got)
	}
}

func TestExpandAppliesOverrides(t *testing.T) {
	t.Parallel()

	recID := ts(4, 9)
	base := parsedEvent{
		uid:      "ev-daily",
		summary:  "Daily Standup",
		start:    ts(1, 9),
		rawRRule: "FREQ=DAILY;COUNT=10",
	}
	moved := parsedEvent{
		uid:          "ev-daily",
		summary:      "Daily Standup (moved)",
		start:        ts(4, 14),
		recurrenceID: &recID,
	}

	got := expand([]parsedEvent{base, moved}, ts(4, 0), ts(5, 0), time.UTC, 100)
	if len(got) != 1 {
		t.Fatalf("expand() = %v, want one overridden instance", got)
	}
	if got[0].Title != "Daily Standup (moved)" || !got[0].Start.Equal(ts(4, 14)) {
		t.Fatalf("override not applied: %+v", got[0])
	}

	// An override moved out of the window drops the instance.
	outID := ts(5, 9)
	movedOut := parsedEvent{
		uid:          "ev-daily",
		summary:      "Daily Standup (next week)",
		start:        ts(12, 9),
		recurrenceID: &outID,
	}
	got = expand([]parsedEvent{base, movedOut}, ts(5, 0), ts(6, 0), time.UTC, 100)
	if len(got) != 0 {
		t.Fatalf("moved-out occurrence still expanded: %v", got)
	}
}

func TestExpandCapsInstances(t *testing.T) {
	t.Parallel()

	ev := parsedEvent{
		uid:      "ev-daily",
		summary:  "Daily Standup",
		start:    ts(1, 9),
		rawRRule: "FREQ=DAILY",
	}
	got := expand([]parsedEvent{ev}, ts(1, 0), ts(30, 0), time.UTC, 3)
	if len(got) != 3 {
		t.Fatalf("expand() = %d instances, want cap of 3", len(got))
	}
}

func TestExpandAllDayRecurrence(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	ev := parsedEvent{
		uid:      "ev-holiday",
		summary:  "Cleaning Day",
		start:    time.Date(2024, 1, 1, 0, 0, 0, 0, berlin),
		allDay:   true,
		rawRRule: "FREQ=WEEKLY;COUNT=5",
	}
	from := time.Date(2024, 1, 8, 0, 0, 0, 0, berlin)
	to := time.Date(2024, 1, 9, 0, 0, 0, 0, berlin)

	got := expand([]parsedEvent{ev}, from, to, berlin, 100)
	if len(got) != 1 {
		t.Fatalf("expand() = %v, want one weekly occurrence", got)
	}
	if !got[0].AllDay {
		t.Fatal("all-day flag lost in expansion")
	}
	if !got[0].Start.Equal(from) {
		t.Fatalf("occurrence start = %v, want local midnight %v", got[0].Start, from)
	}
}

func TestExpandBadRRule(t *testing.T) {
	t.Parallel()

	ev := parsedEvent{uid: "ev-bad", summary: "Broken", start: ts(1, 9), rawRRule: "FREQ=NOPE"}
	if got := expand([]parsedEvent{ev}, ts(1, 0), ts(30, 0), time.UTC, 100); len(got) != 0 {
		t.Fatalf("expand() with invalid rule = %v, want none", got)
	}
}
