package watch

import (
	"strings"
	"time"
)

// DefaultCheckFrequencyHours is the check cadence applied when a rule
// does not set one.
const DefaultCheckFrequencyHours = 6

// Configuration is a persisted watch rule. Configurations are immutable
// once created; replace via delete and re-create.
type Configuration struct {
	UniqueID            string `json:"unique_id"`
	EventNameSubstring  string `json:"event_name_substring"`
	DaysBefore          int    `json:"days_before"`
	FunctionToRun       string `json:"function_to_run"`
	CalendarID          string `json:"calendar_id"`
	CheckFrequencyHours int    `json:"check_frequency_hours"`

	// CreatedAt records when Setup stored the rule. Informational only.
	CreatedAt time.Time `json:"created_at,omitempty"`

	// AssociatedTriggerID references the shared periodic timer. It is
	// persisted as its own record next to the rule blob and joined back
	// in on reads.
	AssociatedTriggerID string `json:"-"`
}

// incomplete reports whether a stored configuration is structurally
// unusable for a check run, with a reason for the log.
func (c Configuration) incomplete() (string, bool) {
	switch {
	case strings.TrimSpace(c.UniqueID) == "":
		return "missing unique id", true
	case strings.TrimSpace(c.EventNameSubstring) == "":
		return "missing event name substring", true
	case c.DaysBefore <= 0:
		return "non-positive days before", true
	case strings.TrimSpace(c.FunctionToRun) == "":
		return "missing callback name", true
	case strings.TrimSpace(c.CalendarID) == "":
		return "missing calendar id", true
	}
	return "", false
}

// SetupRequest carries the parameters of a Setup call. Zero values take
// documented defaults: CheckFrequencyHours 6, UniqueID derived as
// "<substring>_<function>", CalendarID the engine default.
type SetupRequest struct {
	EventNameSubstring  string
	DaysBefore          int
	FunctionToRun       string
	CalendarID          string
	CheckFrequencyHours int
	UniqueID            string
}

func (r SetupRequest) withDefaults(defaultCalendarID string) SetupRequest {
	r.EventNameSubstring = strings.TrimSpace(r.EventNameSubstring)
	r.FunctionToRun = strings.TrimSpace(r.FunctionToRun)
	r.CalendarID = strings.TrimSpace(r.CalendarID)
	r.UniqueID = strings.TrimSpace(r.UniqueID)

	if r.CheckFrequencyHours == 0 {
		r.CheckFrequencyHours = DefaultCheckFrequencyHours
	}
	if r.UniqueID == "" && r.EventNameSubstring != "" && r.FunctionToRun != "" {
		r.UniqueID = r.EventNameSubstring + "_" + r.FunctionToRun
	}
	if r.CalendarID == "" {
		r.CalendarID = defaultCalendarID
	}
	return r
}

func (r SetupRequest) validate() error {
	if r.EventNameSubstring == "" {
		return invalid("eventNameSubstring", "must be a non-empty string")
	}
	if r.DaysBefore <= 0 {
		return invalid("daysBefore", "must be a positive integer")
	}
	if r.FunctionToRun == "" {
		return invalid("functionToRun", "must be a non-empty string")
	}
	if r.CheckFrequencyHours < 1 {
		return invalid("checkFrequencyHours", "must be at least 1")
	}
	if r.CalendarID == "" {
		return invalid("calendarId", "must be a non-empty string")
	}
	return nil
}

func (r SetupRequest) configuration() Configuration {
	return Configuration{
		UniqueID:            r.UniqueID,
		EventNameSubstring:  r.EventNameSubstring,
		DaysBefore:          r.DaysBefore,
		FunctionToRun:       r.FunctionToRun,
		CalendarID:          r.CalendarID,
		CheckFrequencyHours: r.CheckFrequencyHours,
		CreatedAt:           time.Now().UTC(),
	}
}
