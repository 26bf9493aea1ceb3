package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calwatch/pkg/logx"
)

// parsedEvent is a normalized VEVENT before recurrence expansion.
type parsedEvent struct {
	uid     string
	summary string

	start  time.Time
	end    time.Time
	allDay bool

	rawRRule     string
	exDates      []time.Time
	recurrenceID *time.Time // set on override components
}

// parseFeed parses one ICS payload. Individual broken VEVENTs are skipped
// with a log line; the rest of the feed still loads.
func parseFeed(feedID string, body []byte, loc *time.Location, log logx.Logger) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]parsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			log.Warn("ics event skipped", logx.String("feed", feedID), logx.Err(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (parsedEvent, error) {
	var out parsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	out.allDay = isDateOnly(dtStart)

	if out.allDay {
		// Anchor date-only values to local midnight so day matching is not
		// shifted by the library's default zone handling.
		d, err := time.ParseInLocation("20060102", strings.TrimSpace(dtStart.Value), loc)
		if err != nil {
			return out, err
		}
		out.start = d
		out.end = d.AddDate(0, 0, 1)
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.end = end
		} else {
			out.end = start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.recurrenceID = &t
		}
	}

	return out, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if p.ICalParameters != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime handles the three basic ICS time shapes used by EXDATE and
// RECURRENCE-ID values: UTC, floating local, and date-only.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
