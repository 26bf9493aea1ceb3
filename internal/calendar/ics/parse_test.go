package ics

import (
	"strings"
	"testing"
	"time"

	"calwatch/pkg/logx"
)

// icsBody joins content lines with the CRLF endings the format requires.
func icsBody(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//calwatch//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func TestParseFeedTimedEvent(t *testing.T) {
	t.Parallel()

	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-1",
		"SUMMARY:Daily Standup",
		"DTSTART:20240104T090000Z",
		"DTEND:20240104T093000Z",
		"END:VEVENT",
	)
	events, err := parseFeed("team", body, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("parsed %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.uid != "ev-1" || ev.summary != "Daily Standup" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.allDay {
		t.Fatal("timed event parsed as all-day")
	}
	want := time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)
	if !ev.start.Equal(want) {
		t.Fatalf("start = %v, want %v", ev.start, want)
	}
}

func TestParseFeedAllDayEvent(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name    string
		dtstart string
	}{
		{name: "explicit VALUE=DATE", dtstart: "DTSTART;VALUE=DATE:20240104"},
		{name: "date shape without parameter", dtstart: "DTSTART:20240104"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body := icsBody(
				"BEGIN:VEVENT",
				"UID:ev-allday",
				"SUMMARY:Public Holiday",
				tt.dtstart,
				"END:VEVENT",
			)
			events, err := parseFeed("team", body, berlin, logx.Nop())
			if err != nil {
				t.Fatalf("parseFeed: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("parsed %d events, want 1", len(events))
			}
			ev := events[0]
			if !ev.allDay {
				t.Fatal("date-only event not flagged all-day")
			}
			// Anchored to local midnight, not the library's default zone.
			want := time.Date(2024, 1, 4, 0, 0, 0, 0, berlin)
			if !ev.start.Equal(want) {
				t.Fatalf("start = %v, want %v", ev.start, want)
			}
			if !ev.end.Equal(want.AddDate(0, 0, 1)) {
				t.Fatalf("end = %v, want next midnight", ev.end)
			}
		})
	}
}

func TestParseFeedSkipsBrokenEvents(t *testing.T) {
	t.Parallel()

	body := icsBody(
		"BEGIN:VEVENT",
		"SUMMARY:No UID here",
		"DTSTART:20240104T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ev-good",
		"SUMMARY:Survivor",
		"DTSTART:20240104T100000Z",
		"END:VEVENT",
	)
	events, err := parseFeed("team", body, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(events) != 1 || events[0].uid != "ev-good" {
		t.Fatalf("events = %+v, want only ev-good", events)
	}
}

func TestParseFeedRecurrenceProperties(t *testing.T) {
	t.Parallel()

	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-rec",
		"SUMMARY:Weekly Sync",
		"DTSTART:20240101T090000Z",
		"RRULE:FREQ=WEEKLY;COUNT=10",
		"EXDATE:20240108T090000Z,20240115T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ev-rec",
		"SUMMARY:Weekly Sync (moved)",
		"DTSTART:20240122T140000Z",
		"RECURRENCE-ID:20240122T090000Z",
		"END:VEVENT",
	)
	events, err := parseFeed("team", body, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("parsed %d events, want 2", len(events))
	}

	var base, override *parsedEvent
	for i := range events {
		if events[i].recurrenceID != nil {
			override = &events[i]
		} else {
			base = &events[i]
		}
	}
	if base == nil || override == nil {
		t.Fatalf("missing base or override: %+v", events)
	}
	if base.rawRRule != "FREQ=WEEKLY;COUNT=10" {
		t.Fatalf("rrule = %q", base.rawRRule)
	}
	if len(base.exDates) != 2 {
		t.Fatalf("exdates = %v, want 2 entries", base.exDates)
	}
	if !override.recurrenceID.Equal(time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("recurrence id = %v", override.recurrenceID)
	}
}

func TestParseFeedEmptyBody(t *testing.T) {
	t.Parallel()
	if _, err := parseFeed("team", nil, time.UTC, logx.Nop()); err == nil {
		t.Fatal("parseFeed(empty) succeeded")
	}
}

func TestParseICSTime(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "utc", in: "20240104T090000Z", want: time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)},
		{name: "floating local", in: "20240104T090000", want: time.Date(2024, 1, 4, 9, 0, 0, 0, berlin)},
		{name: "date only", in: "20240104", want: time.Date(2024, 1, 4, 0, 0, 0, 0, berlin)},
		{name: "padded", in: " 20240104 ", want: time.Date(2024, 1, 4, 0, 0, 0, 0, berlin)},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "not-a-time", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseICSTime(tt.in, berlin)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseICSTime(%q) succeeded", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseICSTime: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("parseICSTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
