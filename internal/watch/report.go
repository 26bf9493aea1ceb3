package watch

import (
	"time"

	"calwatch/internal/calendar"
)

// Outcome classifies what happened to one matched event during a run.
type Outcome int

const (
	// OutcomeDispatched: callback invoked and the processed marker written.
	OutcomeDispatched Outcome = iota
	// OutcomeSuppressed: an unexpired marker existed; nothing invoked.
	OutcomeSuppressed
	// OutcomeErrored: callback failed; the error marker was written.
	OutcomeErrored
	// OutcomeNoCallback: the configured callback name did not resolve.
	OutcomeNoCallback
	// OutcomeWouldDispatch: dry run; the event would have been dispatched.
	OutcomeWouldDispatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeErrored:
		return "errored"
	case OutcomeNoCallback:
		return "no_callback"
	case OutcomeWouldDispatch:
		return "would_dispatch"
	default:
		return "unknown"
	}
}

// EventResult is the outcome for one matched event.
type EventResult struct {
	Event   calendar.Event
	Outcome Outcome
	Err     error
}

// ConfigResult aggregates one configuration's slice of a run. A skipped
// configuration (structurally incomplete, calendar unreachable, query
// failure) carries the reason and no event results.
type ConfigResult struct {
	UniqueID    string
	Skipped     bool
	SkipReason  string
	WindowStart time.Time
	WindowEnd   time.Time
	Events      []EventResult
}

// Report is the aggregate of one check run or simulation.
type Report struct {
	At      time.Time
	DryRun  bool
	Configs []ConfigResult
}

// Dispatched counts events whose callback actually ran.
func (r Report) Dispatched() int { return r.count(OutcomeDispatched) }

// Suppressed counts events skipped due to an existing marker.
func (r Report) Suppressed() int { return r.count(OutcomeSuppressed) }

// Errors counts failed callback invocations.
func (r Report) Errors() int { return r.count(OutcomeErrored) }

// WouldDispatch counts dry-run events that would have been dispatched.
func (r Report) WouldDispatch() int { return r.count(OutcomeWouldDispatch) }

func (r Report) count(o Outcome) int {
	n := 0
	for _, c := range r.Configs {
		for _, e := range c.Events {
			if e.Outcome == o {
				n++
			}
		}
	}
	return n
}
