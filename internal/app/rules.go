package app

import (
	"context"
	"errors"
	"strings"

	"calwatch/internal/config"
	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

// ruleMarkerPrefix namespaces the "managed by the config file" markers.
// Only rules with a marker are ever deleted by reconciliation; rules
// created through the service API are left alone.
const ruleMarkerPrefix = "rule:"

// reconcileRules syncs stored configurations with the declarative rules
// section: creates missing rules, re-creates edited ones and deletes
// managed rules that left the file. Errors are logged per rule; one bad
// rule does not stop the rest.
func (a *App) reconcileRules(ctx context.Context, rules []config.RuleConfig) {
	log := a.log.With(logx.String("comp", "rules"))

	managed, err := a.store.List(ctx, ruleMarkerPrefix)
	if err != nil {
		log.Warn("rule reconciliation skipped: marker listing failed", logx.Err(err))
		return
	}

	desired := make(map[string]config.RuleConfig, len(rules))
	for _, r := range rules {
		desired[r.Key()] = r
	}

	var created, updated, deleted int

	for key, r := range desired {
		existing, err := a.engine.GetByUniqueID(ctx, key)
		switch {
		case errors.Is(err, watch.ErrNotFound):
			if a.setupRule(ctx, log, key, r) {
				created++
			}
		case err != nil:
			log.Warn("rule lookup failed", logx.String("unique_id", key), logx.Err(err))
		default:
			if _, ok := managed[ruleMarkerPrefix+key]; !ok {
				log.Warn("rule collides with a configuration not managed by the config file; leaving it untouched",
					logx.String("unique_id", key))
				continue
			}
			if ruleMatches(existing, r, a.defaultCal) {
				continue
			}
			// Rules are immutable records; an edit is delete + create.
			if err := a.engine.DeleteOne(ctx, key); err != nil && !errors.Is(err, watch.ErrNotFound) {
				log.Warn("rule update failed: delete step", logx.String("unique_id", key), logx.Err(err))
				continue
			}
			if a.setupRule(ctx, log, key, r) {
				updated++
			}
		}
	}

	for markerKey := range managed {
		key := strings.TrimPrefix(markerKey, ruleMarkerPrefix)
		if _, ok := desired[key]; ok {
			continue
		}
		err := a.engine.DeleteOne(ctx, key)
		if err != nil && !errors.Is(err, watch.ErrNotFound) {
			log.Warn("rule delete failed", logx.String("unique_id", key), logx.Err(err))
			continue
		}
		if err := a.store.Delete(ctx, markerKey); err != nil {
			log.Warn("rule marker delete failed", logx.String("unique_id", key), logx.Err(err))
		}
		deleted++
	}

	if created+updated+deleted > 0 {
		log.Info("rules reconciled",
			logx.Int("created", created),
			logx.Int("updated", updated),
			logx.Int("deleted", deleted))
	} else {
		log.Debug("rules reconciled (no changes)", logx.Int("rules", len(rules)))
	}
}

func (a *App) setupRule(ctx context.Context, log logx.Logger, key string, r config.RuleConfig) bool {
	_, err := a.engine.Setup(ctx, watch.SetupRequest{
		UniqueID:            key,
		EventNameSubstring:  r.EventNameSubstring,
		DaysBefore:          r.DaysBefore,
		FunctionToRun:       r.FunctionToRun,
		CalendarID:          r.CalendarID,
		CheckFrequencyHours: r.CheckFrequencyHours,
	})
	if err != nil {
		log.Warn("rule setup failed", logx.String("unique_id", key), logx.Err(err))
		return false
	}
	if err := a.store.Put(ctx, ruleMarkerPrefix+key, "1"); err != nil {
		log.Warn("rule marker write failed", logx.String("unique_id", key), logx.Err(err))
	}
	return true
}

// ruleMatches compares a stored configuration against a declarative
// rule with the same defaulting Setup applies.
func ruleMatches(cfg watch.Configuration, r config.RuleConfig, defaultCalendarID string) bool {
	freq := r.CheckFrequencyHours
	if freq == 0 {
		freq = watch.DefaultCheckFrequencyHours
	}
	cal := strings.TrimSpace(r.CalendarID)
	if cal == "" {
		cal = defaultCalendarID
	}
	return cfg.EventNameSubstring == strings.TrimSpace(r.EventNameSubstring) &&
		cfg.DaysBefore == r.DaysBefore &&
		cfg.FunctionToRun == strings.TrimSpace(r.FunctionToRun) &&
		cfg.CalendarID == cal &&
		cfg.CheckFrequencyHours == freq
}
