package app

import (
	"fmt"
	"strings"
	"time"

	"calwatch/internal/cache"
	"calwatch/internal/calendar/ics"
	"calwatch/internal/callbacks"
	"calwatch/internal/config"
	"calwatch/internal/observability/pprof"
	"calwatch/internal/schedule"
	"calwatch/internal/storage"
	"calwatch/internal/watch"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, true, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 1*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapCacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Driver:     cfg.Cache.Driver,
		MaxEntries: cfg.Cache.MaxEntries,
	}
}

func mapScheduleConfig(cfg *config.Config) (schedule.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Timezone,
	}, nil
}

func mapWatchOptions(cfg *config.Config, loc *time.Location) (watch.Options, error) {
	processedTTL, err := config.ParseDurationField("cache.processed_ttl", cfg.Cache.ProcessedTTL)
	if err != nil {
		return watch.Options{}, err
	}
	errorTTL, err := config.ParseDurationField("cache.error_ttl", cfg.Cache.ErrorTTL)
	if err != nil {
		return watch.Options{}, err
	}
	return watch.Options{
		Location:          loc,
		DefaultCalendarID: strings.TrimSpace(cfg.Watch.DefaultCalendar),
		ProcessedTTL:      processedTTL,
		ErrorTTL:          errorTTL,
		HistorySize:       cfg.Watch.HistorySize,
		Policy: watch.Policy{
			MarkErrorOnMissingCallback: cfg.Watch.MarkErrorOnMissingCallback,
		},
	}, nil
}

func mapFeedConfigs(cfg *config.Config) (ics.Config, []ics.FeedConfig, error) {
	fetchTimeout, err := config.ParseDurationField("calendars.fetch_timeout", cfg.Calendars.FetchTimeout)
	if err != nil {
		return ics.Config{}, nil, err
	}
	srcCfg := ics.Config{
		FetchTimeout: fetchTimeout,
		MaxInstances: cfg.Calendars.MaxInstances,
	}
	feeds := make([]ics.FeedConfig, 0, len(cfg.Calendars.Feeds))
	for i, f := range cfg.Calendars.Feeds {
		refresh, err := config.ParseDurationField(fmt.Sprintf("calendars.feeds[%d].refresh", i), f.Refresh)
		if err != nil {
			return ics.Config{}, nil, err
		}
		feeds = append(feeds, ics.FeedConfig{
			ID:      strings.TrimSpace(f.ID),
			Name:    strings.TrimSpace(f.Name),
			URL:     strings.TrimSpace(f.URL),
			Refresh: refresh,
		})
	}
	return srcCfg, feeds, nil
}

func mapCallbackSpecs(cfg *config.Config) ([]callbacks.Spec, error) {
	specs := make([]callbacks.Spec, 0, len(cfg.Callbacks))
	for i, cb := range cfg.Callbacks {
		timeout, err := config.ParseDurationField(fmt.Sprintf("callbacks[%d].timeout", i), cb.Timeout)
		if err != nil {
			return nil, err
		}
		specs = append(specs, callbacks.Spec{
			Name:       strings.TrimSpace(cb.Name),
			Type:       strings.ToLower(strings.TrimSpace(cb.Type)),
			URL:        strings.TrimSpace(cb.URL),
			Timeout:    timeout,
			Headers:    cb.Headers,
			Token:      strings.TrimSpace(cb.Token),
			ChatID:     cb.ChatID,
			RatePerSec: cb.RatePerSec,
		})
	}
	return specs, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	p := cfg.Pprof
	readTimeout, err := config.ParseDurationField("pprof.read_timeout", p.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("pprof.write_timeout", p.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("pprof.idle_timeout", p.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       p.Enabled,
		Addr:          strings.TrimSpace(p.Addr),
		Prefix:        strings.TrimSpace(p.Prefix),
		Token:         strings.TrimSpace(p.Token),
		AllowInsecure: p.AllowInsecure,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}, nil
}
