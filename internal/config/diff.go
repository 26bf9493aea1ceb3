package config

import (
	"reflect"
	"sort"
	"strings"

	"calwatch/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like
// tokens), and (3) the keys of rules that changed (added, removed or
// edited).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage: nil means disabled. Path values can hold home dirs, so
	// only log whether one is set.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if oldCfg.Cache != newCfg.Cache {
		changed = append(changed, "cache")
		attrs = append(attrs,
			logx.String("cache.driver", strings.TrimSpace(newCfg.Cache.Driver)),
			logx.Int("cache.max_entries", newCfg.Cache.MaxEntries),
			logx.String("cache.processed_ttl", newCfg.Cache.ProcessedTTL),
			logx.String("cache.error_ttl", newCfg.Cache.ErrorTTL),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.default_timeout", strings.TrimSpace(newCfg.Scheduler.DefaultTimeout)),
			logx.Int("scheduler.history_size", newCfg.Scheduler.HistorySize),
		)
	}

	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs,
			logx.String("watch.default_calendar", strings.TrimSpace(newCfg.Watch.DefaultCalendar)),
			logx.Bool("watch.mark_error_on_missing_callback", newCfg.Watch.MarkErrorOnMissingCallback),
		)
	}

	if !reflect.DeepEqual(oldCfg.Calendars, newCfg.Calendars) {
		changed = append(changed, "calendars")
		attrs = append(attrs,
			logx.Int("calendars.feed_count", len(newCfg.Calendars.Feeds)),
			logx.String("calendars.fetch_timeout", strings.TrimSpace(newCfg.Calendars.FetchTimeout)),
		)
	}

	// Callbacks: compare with tokens reduced to set/unset so a token
	// rotation still counts as a change without the value ever being
	// held in the summary.
	if !reflect.DeepEqual(redactCallbacks(oldCfg.Callbacks), redactCallbacks(newCfg.Callbacks)) {
		changed = append(changed, "callbacks")
		attrs = append(attrs, logx.Int("callbacks.count", len(newCfg.Callbacks)))
	}

	ruleChanged := diffRules(oldCfg.Rules, newCfg.Rules)
	if len(ruleChanged) > 0 {
		changed = append(changed, "rules")
		attrs = append(attrs,
			logx.Int("rules.changed_count", len(ruleChanged)),
			logx.Int("rules.count", len(newCfg.Rules)),
		)
	}

	// Pprof (never log token).
	oP, nP := oldCfg.Pprof, newCfg.Pprof
	oTok, nTok := strings.TrimSpace(oP.Token) != "", strings.TrimSpace(nP.Token) != ""
	oP.Token, nP.Token = "", ""
	if oP != nP || oTok != nTok {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", nP.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(nP.Addr)),
			logx.Bool("pprof.token_set", nTok),
			logx.Bool("pprof.allow_insecure", nP.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs, ruleChanged
}

func redactCallbacks(in []CallbackConfig) []CallbackConfig {
	if len(in) == 0 {
		return nil
	}
	out := make([]CallbackConfig, len(in))
	for i, cb := range in {
		if strings.TrimSpace(cb.Token) != "" {
			cb.Token = "set"
		}
		out[i] = cb
	}
	return out
}

func diffRules(oldR, newR []RuleConfig) []string {
	oldM := make(map[string]RuleConfig, len(oldR))
	for _, r := range oldR {
		oldM[r.Key()] = r
	}
	newM := make(map[string]RuleConfig, len(newR))
	for _, r := range newR {
		newM[r.Key()] = r
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for key := range set {
		o, oOK := oldM[key]
		n, nOK := newM[key]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
