package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Timezone:  "UTC",
		Logging:   LoggingConfig{Level: "info", Console: true},
		Storage:   &StorageConfig{Driver: "file", Path: "./calwatch_state"},
		Cache:     CacheConfig{Driver: "storage", ProcessedTTL: "6h", ErrorTTL: "1h"},
		Scheduler: SchedulerConfig{Workers: 2, DefaultTimeout: "1m"},
		Watch:     WatchConfig{DefaultCalendar: "team"},
		Calendars: CalendarsConfig{
			Feeds: []FeedConfig{{ID: "team", URL: "https://cal.example.com/team.ics", Refresh: "15m"}},
		},
		Callbacks: []CallbackConfig{
			{Name: "notify", Type: "log"},
			{Name: "hook", Type: "webhook", URL: "https://hooks.example.com/x", Timeout: "5s"},
			{Name: "tg", Type: "telegram", Token: "123:abc", ChatID: 42},
		},
		Rules: []RuleConfig{
			{EventNameSubstring: "Standup", DaysBefore: 3, FunctionToRun: "notify"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(cfg *Config) {}},
		{name: "minimal", mutate: func(cfg *Config) {
			*cfg = Config{}
		}},
		{name: "bad timezone", mutate: func(cfg *Config) {
			cfg.Timezone = "Mars/Olympus"
		}, wantErr: "timezone"},
		{name: "unknown storage driver", mutate: func(cfg *Config) {
			cfg.Storage.Driver = "redis"
		}, wantErr: "storage.driver"},
		{name: "file storage without path", mutate: func(cfg *Config) {
			cfg.Storage.Path = ""
		}, wantErr: "storage.path"},
		{name: "memory storage needs no path", mutate: func(cfg *Config) {
			cfg.Storage = &StorageConfig{Driver: "memory"}
			cfg.Cache.Driver = "memory"
		}},
		{name: "bad busy timeout", mutate: func(cfg *Config) {
			cfg.Storage.BusyTimeout = "soon"
		}, wantErr: "storage.busy_timeout"},
		{name: "unknown cache driver", mutate: func(cfg *Config) {
			cfg.Cache.Driver = "memcached"
		}, wantErr: "cache.driver"},
		{name: "storage cache without storage", mutate: func(cfg *Config) {
			cfg.Storage = nil
		}, wantErr: "requires a storage section"},
		{name: "negative cache entries", mutate: func(cfg *Config) {
			cfg.Cache.MaxEntries = -1
		}, wantErr: "cache.max_entries"},
		{name: "bad processed ttl", mutate: func(cfg *Config) {
			cfg.Cache.ProcessedTTL = "six hours"
		}, wantErr: "cache.processed_ttl"},
		{name: "negative workers", mutate: func(cfg *Config) {
			cfg.Scheduler.Workers = -1
		}, wantErr: "scheduler.workers"},
		{name: "bad scheduler timeout", mutate: func(cfg *Config) {
			cfg.Scheduler.DefaultTimeout = "whenever"
		}, wantErr: "scheduler.default_timeout"},
		{name: "feed without id", mutate: func(cfg *Config) {
			cfg.Calendars.Feeds[0].ID = ""
			cfg.Rules = nil
			cfg.Watch.DefaultCalendar = ""
		}, wantErr: "feeds[0].id"},
		{name: "duplicate feed id", mutate: func(cfg *Config) {
			cfg.Calendars.Feeds = append(cfg.Calendars.Feeds, FeedConfig{ID: "team", URL: "https://cal.example.com/other.ics"})
		}, wantErr: "duplicate id"},
		{name: "feed with ftp url", mutate: func(cfg *Config) {
			cfg.Calendars.Feeds[0].URL = "ftp://cal.example.com/team.ics"
		}, wantErr: "unsupported scheme"},
		{name: "feed without url", mutate: func(cfg *Config) {
			cfg.Calendars.Feeds[0].URL = ""
		}, wantErr: "url is required"},
		{name: "callback without name", mutate: func(cfg *Config) {
			cfg.Callbacks[0].Name = ""
			cfg.Rules = nil
		}, wantErr: "callbacks[0].name"},
		{name: "duplicate callback name", mutate: func(cfg *Config) {
			cfg.Callbacks = append(cfg.Callbacks, CallbackConfig{Name: "notify", Type: "log"})
		}, wantErr: "duplicate name"},
		{name: "unknown callback type", mutate: func(cfg *Config) {
			cfg.Callbacks[0].Type = "carrier-pigeon"
		}, wantErr: "unknown type"},
		{name: "webhook without url", mutate: func(cfg *Config) {
			cfg.Callbacks[1].URL = ""
		}, wantErr: "url is required"},
		{name: "telegram without token", mutate: func(cfg *Config) {
			cfg.Callbacks[2].Token = ""
		}, wantErr: "token is required"},
		{name: "telegram without chat id", mutate: func(cfg *Config) {
			cfg.Callbacks[2].ChatID = 0
		}, wantErr: "chat_id is required"},
		{name: "negative callback rate", mutate: func(cfg *Config) {
			cfg.Callbacks[0].RatePerSec = -1
		}, wantErr: "rate_per_sec"},
		{name: "rule without substring", mutate: func(cfg *Config) {
			cfg.Rules[0].EventNameSubstring = ""
		}, wantErr: "event_name_substring"},
		{name: "rule with zero days", mutate: func(cfg *Config) {
			cfg.Rules[0].DaysBefore = 0
		}, wantErr: "days_before"},
		{name: "rule with unknown callback", mutate: func(cfg *Config) {
			cfg.Rules[0].FunctionToRun = "ghost"
		}, wantErr: "unknown callback"},
		{name: "rule with unknown calendar", mutate: func(cfg *Config) {
			cfg.Rules[0].CalendarID = "nope"
		}, wantErr: "unknown calendar"},
		{name: "rule without any calendar", mutate: func(cfg *Config) {
			cfg.Watch.DefaultCalendar = ""
		}, wantErr: "default_calendar is unset"},
		{name: "rule with negative frequency", mutate: func(cfg *Config) {
			cfg.Rules[0].CheckFrequencyHours = -6
		}, wantErr: "check_frequency_hours"},
		{name: "duplicate rule keys", mutate: func(cfg *Config) {
			cfg.Rules = append(cfg.Rules, RuleConfig{EventNameSubstring: "Standup", DaysBefore: 5, FunctionToRun: "notify"})
		}, wantErr: "duplicate unique id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	if err := Validate(nil); err == nil {
		t.Fatal("Validate(nil) succeeded")
	}
}

func TestRuleKey(t *testing.T) {
	t.Parallel()

	r := RuleConfig{EventNameSubstring: "Standup", FunctionToRun: "notify"}
	if got := r.Key(); got != "Standup_notify" {
		t.Fatalf("Key() = %q, want derived id", got)
	}
	r.UniqueID = " explicit "
	if got := r.Key(); got != "explicit" {
		t.Fatalf("Key() = %q, want trimmed explicit id", got)
	}
}
