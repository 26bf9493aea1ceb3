package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate rejects configs that would misbehave at runtime. It is run
// at boot and as the reload validator, so a bad edit never replaces a
// working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: invalid %q: %w", tz, err)
		}
	}

	if err := validateStorage(cfg.Storage); err != nil {
		return err
	}
	if err := validateCache(cfg); err != nil {
		return err
	}

	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}

	if cfg.Watch.HistorySize < 0 {
		return fmt.Errorf("watch.history_size must be >= 0")
	}

	if err := validateCalendars(cfg.Calendars); err != nil {
		return err
	}
	if err := validateCallbacks(cfg.Callbacks); err != nil {
		return err
	}
	if err := validateRules(cfg); err != nil {
		return err
	}

	if _, err := ParseDurationField("pprof.read_timeout", cfg.Pprof.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("pprof.write_timeout", cfg.Pprof.WriteTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("pprof.idle_timeout", cfg.Pprof.IdleTimeout); err != nil {
		return err
	}

	return nil
}

func validateStorage(s *StorageConfig) error {
	if s == nil {
		return nil
	}
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "none", "memory":
		return nil
	case "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown %q (want memory, file or sqlite)", s.Driver)
	}
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("storage.path is required for driver %q", driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func validateCache(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))
	switch driver {
	case "", "memory":
	case "storage":
		if cfg.Storage == nil || strings.TrimSpace(cfg.Storage.Driver) == "" ||
			strings.EqualFold(strings.TrimSpace(cfg.Storage.Driver), "none") {
			return fmt.Errorf("cache.driver %q requires a storage section", driver)
		}
	default:
		return fmt.Errorf("cache.driver: unknown %q (want memory or storage)", cfg.Cache.Driver)
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0")
	}
	if _, err := ParseDurationField("cache.processed_ttl", cfg.Cache.ProcessedTTL); err != nil {
		return err
	}
	if _, err := ParseDurationField("cache.error_ttl", cfg.Cache.ErrorTTL); err != nil {
		return err
	}
	return nil
}

func validateCalendars(c CalendarsConfig) error {
	if _, err := ParseDurationField("calendars.fetch_timeout", c.FetchTimeout); err != nil {
		return err
	}
	if c.MaxInstances < 0 {
		return fmt.Errorf("calendars.max_instances must be >= 0")
	}
	seen := make(map[string]struct{}, len(c.Feeds))
	for i, f := range c.Feeds {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			return fmt.Errorf("calendars.feeds[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("calendars.feeds: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if err := requireHTTPURL(fmt.Sprintf("calendars.feeds[%d].url", i), f.URL); err != nil {
			return err
		}
		if _, err := ParseDurationField(fmt.Sprintf("calendars.feeds[%d].refresh", i), f.Refresh); err != nil {
			return err
		}
	}
	return nil
}

func validateCallbacks(cbs []CallbackConfig) error {
	seen := make(map[string]struct{}, len(cbs))
	for i, cb := range cbs {
		name := strings.TrimSpace(cb.Name)
		if name == "" {
			return fmt.Errorf("callbacks[%d].name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("callbacks: duplicate name %q", name)
		}
		seen[name] = struct{}{}

		switch strings.ToLower(strings.TrimSpace(cb.Type)) {
		case "log":
		case "webhook":
			if err := requireHTTPURL(fmt.Sprintf("callbacks[%d].url", i), cb.URL); err != nil {
				return err
			}
			if _, err := ParseDurationField(fmt.Sprintf("callbacks[%d].timeout", i), cb.Timeout); err != nil {
				return err
			}
		case "telegram":
			if strings.TrimSpace(cb.Token) == "" {
				return fmt.Errorf("callbacks[%d] (%s): telegram token is required", i, name)
			}
			if cb.ChatID == 0 {
				return fmt.Errorf("callbacks[%d] (%s): telegram chat_id is required", i, name)
			}
		default:
			return fmt.Errorf("callbacks[%d] (%s): unknown type %q", i, name, cb.Type)
		}
		if cb.RatePerSec < 0 {
			return fmt.Errorf("callbacks[%d] (%s): rate_per_sec must be >= 0", i, name)
		}
	}
	return nil
}

func validateRules(cfg *Config) error {
	callbackNames := make(map[string]struct{}, len(cfg.Callbacks))
	for _, cb := range cfg.Callbacks {
		callbackNames[strings.TrimSpace(cb.Name)] = struct{}{}
	}
	feedIDs := make(map[string]struct{}, len(cfg.Calendars.Feeds))
	for _, f := range cfg.Calendars.Feeds {
		feedIDs[strings.TrimSpace(f.ID)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if strings.TrimSpace(r.EventNameSubstring) == "" {
			return fmt.Errorf("rules[%d].event_name_substring is required", i)
		}
		if r.DaysBefore < 1 {
			return fmt.Errorf("rules[%d].days_before must be >= 1", i)
		}
		fn := strings.TrimSpace(r.FunctionToRun)
		if fn == "" {
			return fmt.Errorf("rules[%d].function_to_run is required", i)
		}
		if _, ok := callbackNames[fn]; !ok {
			return fmt.Errorf("rules[%d]: unknown callback %q", i, fn)
		}
		if r.CheckFrequencyHours < 0 {
			return fmt.Errorf("rules[%d].check_frequency_hours must be >= 0", i)
		}
		// Rules may name a feed or rely on watch.default_calendar.
		if cal := strings.TrimSpace(r.CalendarID); cal != "" {
			if _, ok := feedIDs[cal]; !ok {
				return fmt.Errorf("rules[%d]: unknown calendar %q", i, cal)
			}
		} else if strings.TrimSpace(cfg.Watch.DefaultCalendar) == "" {
			return fmt.Errorf("rules[%d]: no calendar_id and watch.default_calendar is unset", i)
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("rules: duplicate unique id %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func requireHTTPURL(path, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", path)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", path, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", path)
	}
	return nil
}
