package config

import "strings"

// Config is the daemon configuration.
//
// Hot-reloadable sections: logging, callbacks, rules, pprof. Changes to
// storage, cache, scheduler or calendars need a restart to take effect;
// the reload loop logs and ignores them.
type Config struct {
	// Timezone is the IANA zone the engine computes day windows in and
	// the scheduler fires in. Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	Logging   LoggingConfig    `json:"logging"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Cache     CacheConfig      `json:"cache,omitempty"`
	Scheduler SchedulerConfig  `json:"scheduler,omitempty"`
	Watch     WatchConfig      `json:"watch,omitempty"`
	Calendars CalendarsConfig  `json:"calendars"`
	Callbacks []CallbackConfig `json:"callbacks,omitempty"`

	// Rules are declaratively managed watch rules: reconciled on boot
	// and on reload against the stored configurations.
	Rules []RuleConfig `json:"rules,omitempty"`

	Pprof PprofConfig `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the durable state backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./calwatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CacheConfig controls the suppression marker cache.
//
// All TTLs are Go duration strings (e.g. "6h", "30m").
type CacheConfig struct {
	Driver       string `json:"driver,omitempty"` // "memory" (default) | "storage"
	MaxEntries   int    `json:"max_entries,omitempty"`
	ProcessedTTL string `json:"processed_ttl,omitempty"` // default "6h"
	ErrorTTL     string `json:"error_ttl,omitempty"`     // default "1h"
}

// SchedulerConfig controls tick execution.
type SchedulerConfig struct {
	Workers int `json:"workers,omitempty"`
	// DefaultTimeout bounds one check run (Go duration string).
	// Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// WatchConfig controls engine behavior.
type WatchConfig struct {
	// DefaultCalendar is captured by rules that do not name a calendar.
	DefaultCalendar string `json:"default_calendar,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
	// MarkErrorOnMissingCallback bounds retries for rules whose
	// callback name no longer resolves. When off, such rules retry
	// every tick until the callback reappears.
	MarkErrorOnMissingCallback bool `json:"mark_error_on_missing_callback,omitempty"`
}

// CalendarsConfig lists the ICS feed subscriptions.
type CalendarsConfig struct {
	// FetchTimeout is a Go duration string bounding one feed fetch.
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	// MaxInstances caps recurrence expansion per query.
	MaxInstances int          `json:"max_instances,omitempty"`
	Feeds        []FeedConfig `json:"feeds,omitempty"`
}

type FeedConfig struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
	// Refresh is a Go duration string; how long a fetched snapshot is
	// served before revalidating. Default "15m".
	Refresh string `json:"refresh,omitempty"`
}

// CallbackConfig declares one named callback rules can reference.
type CallbackConfig struct {
	Name string `json:"name"`
	Type string `json:"type"` // "log" | "webhook" | "telegram"

	// webhook
	URL     string            `json:"url,omitempty"`
	Timeout string            `json:"timeout,omitempty"` // Go duration string
	Headers map[string]string `json:"headers,omitempty"`

	// telegram (token is never logged)
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// RuleConfig is a declaratively managed watch rule.
type RuleConfig struct {
	UniqueID            string `json:"unique_id,omitempty"`
	EventNameSubstring  string `json:"event_name_substring"`
	DaysBefore          int    `json:"days_before"`
	FunctionToRun       string `json:"function_to_run"`
	CalendarID          string `json:"calendar_id,omitempty"`
	CheckFrequencyHours int    `json:"check_frequency_hours,omitempty"`
}

// Key returns the rule's effective unique id. When unique_id is omitted
// it is derived the same way the watch service derives it, so diffing
// and reconciliation agree on identity.
func (r RuleConfig) Key() string {
	if id := strings.TrimSpace(r.UniqueID); id != "" {
		return id
	}
	return strings.TrimSpace(r.EventNameSubstring) + "_" + strings.TrimSpace(r.FunctionToRun)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
