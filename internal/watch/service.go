package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"calwatch/internal/calendar"
	"calwatch/pkg/logx"
)

// Policy tunes behaviors the dispatch contract leaves open.
type Policy struct {
	// MarkErrorOnMissingCallback writes the short-lived error marker
	// when a configured callback name does not resolve, bounding the
	// retry cadence to the marker TTL. When off, an unresolvable
	// callback is retried on every tick until the name reappears.
	MarkErrorOnMissingCallback bool
}

// Options configures the engine.
type Options struct {
	Location          *time.Location
	DefaultCalendarID string
	ProcessedTTL      time.Duration
	ErrorTTL          time.Duration
	HistorySize       int
	Policy            Policy
}

// Deps are the engine's external collaborators.
type Deps struct {
	KV        KV
	Source    calendar.Source
	Scheduler Scheduler
	Registry  *Registry
	Cache     Cache
}

// Service is the engine facade: rule lifecycle, check runs, simulation.
type Service struct {
	log               logx.Logger
	loc               *time.Location
	policy            Policy
	defaultCalendarID string

	store    *configStore
	source   calendar.Source
	triggers *triggerRefs
	registry *Registry
	dedupe   *Deduper

	hmu         sync.Mutex
	history     []Report
	historySize int
}

func New(opts Options, deps Deps, log logx.Logger) (*Service, error) {
	if deps.KV == nil {
		return nil, errors.New("watch: kv store required")
	}
	if deps.Source == nil {
		return nil, errors.New("watch: calendar source required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("watch: scheduler required")
	}
	if deps.Cache == nil {
		return nil, errors.New("watch: cache required")
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = 50
	}
	return &Service{
		log:               log,
		loc:               loc,
		policy:            opts.Policy,
		defaultCalendarID: strings.TrimSpace(opts.DefaultCalendarID),
		store:             &configStore{kv: deps.KV},
		source:            deps.Source,
		triggers:          &triggerRefs{sched: deps.Scheduler, handler: CheckHandler, log: log},
		registry:          deps.Registry,
		dedupe:            NewDeduper(deps.Cache, opts.ProcessedTTL, opts.ErrorTTL, log),
		historySize:       historySize,
	}, nil
}

// Registry exposes the callback registry for binding callbacks.
func (s *Service) Registry() *Registry { return s.registry }

// Tick runs one check at the current time. It is the function bound to
// the shared periodic timer.
func (s *Service) Tick(ctx context.Context) error {
	_, err := s.RunCheck(ctx, time.Now())
	return err
}

// Setup creates a new watch rule: validates the request, acquires the
// shared check timer and persists the records. If the persist fails
// after this call created the timer, the timer delete is attempted as
// best-effort compensation.
func (s *Service) Setup(ctx context.Context, req SetupRequest) (Configuration, error) {
	req = req.withDefaults(s.defaultCalendarID)
	if err := req.validate(); err != nil {
		return Configuration{}, err
	}
	if _, err := s.registry.Resolve(req.FunctionToRun); err != nil {
		return Configuration{}, err
	}

	if _, ok, err := s.store.get(ctx, req.UniqueID); err != nil {
		return Configuration{}, fmt.Errorf("lookup %q: %w", req.UniqueID, err)
	} else if ok {
		return Configuration{}, fmt.Errorf("%w: %q", ErrConfigExists, req.UniqueID)
	}

	timerID, created, err := s.triggers.acquire(req.CheckFrequencyHours)
	if err != nil {
		return Configuration{}, fmt.Errorf("acquire check timer: %w", err)
	}

	cfg := req.configuration()
	cfg.AssociatedTriggerID = timerID
	if err := s.store.put(ctx, cfg); err != nil {
		_ = s.store.delete(ctx, cfg.UniqueID)
		if created {
			if derr := s.triggers.sched.DeleteTimer(timerID); derr != nil {
				s.log.Warn("compensating timer delete failed",
					logx.String("timer", timerID),
					logx.Err(derr))
			}
		}
		return Configuration{}, fmt.Errorf("persist configuration: %w", err)
	}

	s.log.Info("configuration created",
		logx.String("config", cfg.UniqueID),
		logx.String("substring", cfg.EventNameSubstring),
		logx.Int("days_before", cfg.DaysBefore),
		logx.String("callback", cfg.FunctionToRun),
		logx.String("timer", timerID))
	return cfg, nil
}

// DeleteOne removes a rule. Deleting the stored records is the hard
// step; timer cleanup is soft since a leftover timer just keeps ticking
// against the remaining rules.
func (s *Service) DeleteOne(ctx context.Context, uniqueID string) error {
	uniqueID = strings.TrimSpace(uniqueID)
	if uniqueID == "" {
		return invalid("uniqueId", "must be a non-empty string")
	}
	cfg, ok, err := s.store.get(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", uniqueID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, uniqueID)
	}

	if err := s.store.delete(ctx, uniqueID); err != nil {
		return fmt.Errorf("delete configuration %q: %w", uniqueID, err)
	}

	remaining, err := s.store.listAll(ctx)
	if err != nil {
		s.log.Warn("skipping timer cleanup; listing remaining configurations failed", logx.Err(err))
		return nil
	}
	if err := s.triggers.release(cfg.AssociatedTriggerID, remaining); err != nil {
		s.log.Warn("timer cleanup failed",
			logx.String("timer", cfg.AssociatedTriggerID),
			logx.Err(err))
	}
	s.log.Info("configuration deleted", logx.String("config", uniqueID))
	return nil
}

// DeleteAll removes every rule and returns how many were deleted.
// Record deletions that fail leave their rule in place and are reported
// through the first error; timer cleanup stays soft.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	configs, err := s.store.listAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list configurations: %w", err)
	}

	deleted := 0
	var firstErr error
	timerIDs := map[string]bool{}
	for _, cfg := range configs {
		if err := s.store.delete(ctx, cfg.UniqueID); err != nil {
			s.log.Error("delete failed", logx.String("config", cfg.UniqueID), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("delete configuration %q: %w", cfg.UniqueID, err)
			}
			continue
		}
		deleted++
		if cfg.AssociatedTriggerID != "" {
			timerIDs[cfg.AssociatedTriggerID] = true
		}
	}

	remaining, err := s.store.listAll(ctx)
	if err != nil {
		s.log.Warn("skipping timer cleanup; listing remaining configurations failed", logx.Err(err))
		return deleted, firstErr
	}
	for id := range timerIDs {
		if err := s.triggers.release(id, remaining); err != nil {
			s.log.Warn("timer cleanup failed", logx.String("timer", id), logx.Err(err))
		}
	}
	if deleted > 0 {
		s.log.Info("configurations deleted", logx.Int("count", deleted))
	}
	return deleted, firstErr
}

// ListAll returns every stored rule, ordered by unique id.
func (s *Service) ListAll(ctx context.Context) ([]Configuration, error) {
	return s.store.listAll(ctx)
}

// GetByUniqueID returns the rule stored under the given id.
func (s *Service) GetByUniqueID(ctx context.Context, uniqueID string) (Configuration, error) {
	cfg, ok, err := s.store.get(ctx, strings.TrimSpace(uniqueID))
	if err != nil {
		return Configuration{}, fmt.Errorf("lookup %q: %w", uniqueID, err)
	}
	if !ok {
		return Configuration{}, fmt.Errorf("%w: %q", ErrNotFound, uniqueID)
	}
	return cfg, nil
}

// GetByEventSubstring returns the rules watching exactly the given
// substring.
func (s *Service) GetByEventSubstring(ctx context.Context, substring string) ([]Configuration, error) {
	configs, err := s.store.listAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Configuration
	for _, cfg := range configs {
		if cfg.EventNameSubstring == substring {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// RestoreTimers re-attaches stored rules to a live timer after a
// restart. Timer resources are process-local, so persisted bindings
// from the previous process refer to timers that no longer exist.
func (s *Service) RestoreTimers(ctx context.Context) error {
	configs, err := s.store.listAll(ctx)
	if err != nil {
		return fmt.Errorf("list configurations: %w", err)
	}
	restored := 0
	for _, cfg := range configs {
		if reason, bad := cfg.incomplete(); bad {
			s.log.Warn("not restoring timer for incomplete configuration",
				logx.String("config", cfg.UniqueID),
				logx.String("reason", reason))
			continue
		}
		timerID, _, err := s.triggers.acquire(cfg.CheckFrequencyHours)
		if err != nil {
			return fmt.Errorf("restore timer for %q: %w", cfg.UniqueID, err)
		}
		if timerID == cfg.AssociatedTriggerID {
			continue
		}
		if err := s.store.putTrigger(ctx, cfg.UniqueID, timerID); err != nil {
			return fmt.Errorf("rebind timer for %q: %w", cfg.UniqueID, err)
		}
		restored++
	}
	if restored > 0 {
		s.log.Info("timers restored", logx.Int("configs", restored))
	}
	return nil
}

func (s *Service) recordReport(rep Report) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, rep)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// History returns recent check reports, oldest first. Simulations are
// not recorded.
func (s *Service) History() []Report {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]Report, len(s.history))
	copy(out, s.history)
	return out
}
