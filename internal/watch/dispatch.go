package watch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"calwatch/internal/calendar"
	"calwatch/pkg/logx"
)

// RunCheck executes one check pass over all configurations at the given
// instant. Failures are isolated per configuration and per event; only
// a failure to list the configurations aborts the run. Side effects are
// calendar reads, callback invocations and marker writes; rules and
// timers are never mutated here.
func (s *Service) RunCheck(ctx context.Context, now time.Time) (Report, error) {
	configs, err := s.store.listAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list configurations: %w", err)
	}

	rep := Report{At: now}
	for _, cfg := range configs {
		rep.Configs = append(rep.Configs, s.runConfig(ctx, cfg, now, false))
	}
	s.recordReport(rep)

	fields := []logx.Field{
		logx.Int("configs", len(rep.Configs)),
		logx.Int("dispatched", rep.Dispatched()),
		logx.Int("suppressed", rep.Suppressed()),
		logx.Int("errors", rep.Errors()),
	}
	if rep.Dispatched()+rep.Errors() > 0 {
		s.log.Info("check run finished", fields...)
	} else {
		s.log.Debug("check run finished", fields...)
	}
	return rep, nil
}

// Simulate reports what RunCheck would act on for the same inputs,
// without invoking callbacks or writing markers, rules or timers. An
// empty uniqueID simulates all configurations.
func (s *Service) Simulate(ctx context.Context, now time.Time, uniqueID string) (Report, error) {
	var configs []Configuration
	if uniqueID == "" {
		var err error
		configs, err = s.store.listAll(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("list configurations: %w", err)
		}
	} else {
		cfg, ok, err := s.store.get(ctx, uniqueID)
		if err != nil {
			return Report{}, fmt.Errorf("lookup %q: %w", uniqueID, err)
		}
		if !ok {
			return Report{}, fmt.Errorf("%w: %q", ErrNotFound, uniqueID)
		}
		configs = []Configuration{cfg}
	}

	rep := Report{At: now, DryRun: true}
	for _, cfg := range configs {
		rep.Configs = append(rep.Configs, s.runConfig(ctx, cfg, now, true))
	}
	return rep, nil
}

func (s *Service) runConfig(ctx context.Context, cfg Configuration, now time.Time, dry bool) ConfigResult {
	res := ConfigResult{UniqueID: cfg.UniqueID}
	clog := s.log.With(logx.String("config", cfg.UniqueID))

	if reason, bad := cfg.incomplete(); bad {
		res.Skipped = true
		res.SkipReason = reason
		clog.Warn("skipping incomplete configuration", logx.String("reason", reason))
		return res
	}

	if _, err := s.source.Calendar(ctx, cfg.CalendarID); err != nil {
		res.Skipped = true
		res.SkipReason = "calendar unavailable: " + err.Error()
		clog.Warn("skipping configuration; calendar unavailable",
			logx.String("calendar", cfg.CalendarID),
			logx.Err(err))
		return res
	}

	start, end := ComputeWindow(now, cfg.DaysBefore, s.loc)
	res.WindowStart, res.WindowEnd = start, end

	events, err := s.source.Events(ctx, cfg.CalendarID, start, end, cfg.EventNameSubstring)
	if err != nil {
		res.Skipped = true
		res.SkipReason = "event query failed: " + err.Error()
		clog.Warn("skipping configuration; event query failed", logx.Err(err))
		return res
	}

	for _, ev := range events {
		if !Matches(ev, cfg.EventNameSubstring, start) {
			continue
		}
		res.Events = append(res.Events, s.dispatchOne(ctx, clog, cfg, ev, dry))
	}
	return res
}

func (s *Service) dispatchOne(ctx context.Context, clog logx.Logger, cfg Configuration, ev calendar.Event, dry bool) EventResult {
	res := EventResult{Event: ev}

	if s.dedupe.Seen(ctx, ev) {
		res.Outcome = OutcomeSuppressed
		clog.Debug("event already handled",
			logx.String("event", ev.ID),
			logx.Time("start", ev.Start))
		return res
	}
	if dry {
		res.Outcome = OutcomeWouldDispatch
		return res
	}

	cb, err := s.registry.Resolve(cfg.FunctionToRun)
	if err != nil {
		res.Outcome = OutcomeNoCallback
		res.Err = err
		clog.Error("callback not resolvable",
			logx.String("callback", cfg.FunctionToRun),
			logx.Err(err))
		if s.policy.MarkErrorOnMissingCallback {
			s.dedupe.MarkError(ctx, ev)
		}
		return res
	}

	if err := s.safeInvoke(ctx, cb, ev); err != nil {
		res.Outcome = OutcomeErrored
		res.Err = err
		s.dedupe.MarkError(ctx, ev)
		clog.Warn("callback failed",
			logx.String("callback", cfg.FunctionToRun),
			logx.String("event", ev.ID),
			logx.Err(err))
		return res
	}

	res.Outcome = OutcomeDispatched
	s.dedupe.MarkProcessed(ctx, ev)
	clog.Info("callback dispatched",
		logx.String("callback", cfg.FunctionToRun),
		logx.String("event", ev.ID),
		logx.String("title", ev.Title),
		logx.Time("start", ev.Start))
	return res
}

func (s *Service) safeInvoke(ctx context.Context, cb Callback, ev calendar.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in callback",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return cb.Invoke(ctx, ev)
}
