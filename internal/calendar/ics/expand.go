package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	"calwatch/internal/calendar"
)

// expand turns parsed VEVENTs into concrete instances starting within
// [from, to), expanding RRULE recurrences and applying EXDATE exclusions
// and RECURRENCE-ID overrides. Instance starts are normalized into loc;
// all-day instances land on local midnight.
func expand(events []parsedEvent, from, to time.Time, loc *time.Location, maxInstances int) []calendar.Event {
	// Overrides are keyed by UID; base components carry the recurrence rule.
	overrides := map[string][]parsedEvent{}
	var bases []parsedEvent
	for _, ev := range events {
		if ev.recurrenceID != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		bases = append(bases, ev)
	}

	var out []calendar.Event
	for _, base := range bases {
		if base.rawRRule == "" {
			if inst, ok := singleInstance(base, overrides[base.uid], from, to, loc); ok {
				out = append(out, inst)
			}
			continue
		}
		out = append(out, recurringInstances(base, overrides[base.uid], from, to, loc, maxInstances)...)
		if len(out) >= maxInstances {
			out = out[:maxInstances]
			break
		}
	}
	return out
}

func singleInstance(ev parsedEvent, ovs []parsedEvent, from, to time.Time, loc *time.Location) (calendar.Event, bool) {
	start := instanceStart(ev, ev.start, loc)
	if o, ok := overrideFor(ovs, ev.start, loc); ok {
		start = instanceStart(o, o.start, loc)
		ev = o
	}
	if start.Before(from) || !start.Before(to) {
		return calendar.Event{}, false
	}
	return calendar.Event{ID: ev.uid, Title: ev.summary, Start: start, AllDay: ev.allDay}, true
}

func recurringInstances(ev parsedEvent, ovs []parsedEvent, from, to time.Time, loc *time.Location, maxInstances int) []calendar.Event {
	r, err := rrule.StrToRRule(ev.rawRRule)
	if err != nil {
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	// Between() is end-inclusive; trim the boundary below to keep [from, to).
	occs := set.Between(from.In(ev.start.Location()), to.In(ev.start.Location()), true)
	if len(occs) > maxInstances {
		occs = occs[:maxInstances]
	}

	out := make([]calendar.Event, 0, len(occs))
	for _, occ := range occs {
		inst := ev
		start := instanceStart(ev, occ, loc)
		if o, ok := overrideFor(ovs, occ, loc); ok {
			inst = o
			start = instanceStart(o, o.start, loc)
		}
		if start.Before(from) || !start.Before(to) {
			continue
		}
		out = append(out, calendar.Event{ID: inst.uid, Title: inst.summary, Start: start, AllDay: inst.allDay})
	}
	return out
}

// instanceStart normalizes one occurrence start into loc. All-day events are
// re-anchored to midnight of their calendar date so that a date stays the
// same date regardless of the zone the feed encoded it in.
func instanceStart(ev parsedEvent, occ time.Time, loc *time.Location) time.Time {
	if ev.allDay {
		y, m, d := occ.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return occ.In(loc)
}

func overrideFor(ovs []parsedEvent, occStart time.Time, loc *time.Location) (parsedEvent, bool) {
	for _, o := range ovs {
		if o.recurrenceID == nil {
			continue
		}
		if o.recurrenceID.In(loc).Equal(occStart.In(loc)) {
			return o, true
		}
	}
	return parsedEvent{}, false
}
