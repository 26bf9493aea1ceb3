package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"calwatch/internal/cache"
	"calwatch/internal/calendar"
	"calwatch/internal/calendar/ics"
	"calwatch/internal/callbacks"
	"calwatch/internal/config"
	"calwatch/internal/observability/pprof"
	"calwatch/internal/schedule"
	"calwatch/internal/storage"
	"calwatch/internal/watch"
	"calwatch/pkg/logx"
)

// App wires the daemon together: config, logging, storage, cache,
// scheduler, calendar source, callback registry and the watch engine.
type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store  storage.Store
	cache  cache.Cache
	sched  *schedule.Service
	source calendar.Source
	engine *watch.Service
	pprof  *pprof.Service

	defaultCal string

	// cbNames tracks currently registered callback names so a reload
	// can unregister removed ones. Touched only by New and the reload
	// loop.
	cbNames map[string]struct{}

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	// Transactional reload: a config that fails validation never
	// replaces the running one.
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if store == nil {
		store = storage.NewMemory()
		log.Info("storage disabled; rules and markers held in memory only")
	}

	cch, err := cache.Open(mapCacheConfig(cfg), store)
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapScheduleConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := schedule.New(schedCfg, log.With(logx.String("comp", "schedule")))

	var source calendar.Source
	if len(cfg.Calendars.Feeds) > 0 {
		srcCfg, feeds, err := mapFeedConfigs(cfg)
		if err != nil {
			return nil, err
		}
		source = ics.New(srcCfg, feeds, loc, log.With(logx.String("comp", "ics")))
	} else {
		source = calendar.NewStatic()
		log.Warn("no calendar feeds configured; checks will find nothing")
	}

	registry := watch.NewRegistry()
	specs, err := mapCallbackSpecs(cfg)
	if err != nil {
		return nil, err
	}
	if err := callbacks.Register(registry, specs, log.With(logx.String("comp", "callbacks"))); err != nil {
		return nil, err
	}
	cbNames := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		cbNames[sp.Name] = struct{}{}
	}

	opts, err := mapWatchOptions(cfg, loc)
	if err != nil {
		return nil, err
	}
	engine, err := watch.New(opts, watch.Deps{
		KV:        store,
		Source:    source,
		Scheduler: sched,
		Registry:  registry,
		Cache:     cch,
	}, log.With(logx.String("comp", "watch")))
	if err != nil {
		return nil, err
	}

	if err := sched.RegisterHandler(watch.CheckHandler, engine.Tick); err != nil {
		return nil, err
	}

	ppc, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      store,
		cache:      cch,
		sched:      sched,
		source:     source,
		engine:     engine,
		pprof:      pprof.New(ppc, log.With(logx.String("comp", "pprof"))),
		defaultCal: opts.DefaultCalendarID,
		cbNames:    cbNames,
	}, nil
}

// Engine exposes the watch service for operational use (CLI, tests).
func (a *App) Engine() *watch.Service { return a.engine }

func (a *App) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runCtx, a.cancel = context.WithCancel(ctx)

	a.sched.Start(a.runCtx)

	// Stored timer bindings reference cron entries that died with the
	// previous process; re-acquire them before reconciling rules.
	if err := a.engine.RestoreTimers(a.runCtx); err != nil {
		a.log.Warn("timer restore failed", logx.Err(err))
	}
	a.reconcileRules(a.runCtx, a.cfgm.Get().Rules)

	if a.pprof.Enabled() {
		a.pprof.Start(a.runCtx)
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(a.runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(a.runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.notifyReady()
	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyReload(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, changedRules := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	var restartOnly []string
	for _, s := range sections {
		switch s {
		case "storage", "cache", "scheduler", "calendars", "watch", "timezone":
			restartOnly = append(restartOnly, s)
		}
	}
	if len(restartOnly) > 0 {
		a.log.Warn("config changed in sections that need a restart to take effect",
			logx.String("sections", strings.Join(restartOnly, ",")))
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	if hasSection(sections, "callbacks") {
		a.applyCallbacks(newCfg)
	}
	if hasSection(sections, "rules") || len(changedRules) > 0 {
		a.reconcileRules(ctx, newCfg.Rules)
	}

	if ppc, err := mapPprofConfig(newCfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Reconfigure(ctx, ppc)
	}

	a.log.Info("config reloaded", fields...)
}

// applyCallbacks upserts every configured callback and unregisters the
// ones that left the config. Rules referencing a removed name start
// reporting a missing callback on their next run.
func (a *App) applyCallbacks(newCfg *config.Config) {
	specs, err := mapCallbackSpecs(newCfg)
	if err != nil {
		a.log.Warn("invalid callbacks config; keeping previous", logx.Err(err))
		return
	}
	if err := callbacks.Register(a.engine.Registry(), specs, a.log.With(logx.String("comp", "callbacks"))); err != nil {
		a.log.Warn("callback rebuild failed; keeping previous", logx.Err(err))
		return
	}
	next := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		next[sp.Name] = struct{}{}
	}
	for name := range a.cbNames {
		if _, ok := next[name]; !ok {
			a.engine.Registry().Unregister(name)
			a.log.Info("callback removed", logx.String("callback", name))
		}
	}
	a.cbNames = next
}

func hasSection(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.cancel()

	// Bound every shutdown step so one stuck component cannot stall the
	// whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else {
				a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
			// Observe whether the step eventually finishes.
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	step("pprof", 1*time.Second, func(c context.Context) error {
		a.pprof.Stop(c)
		return nil
	})
	step("schedule", 2*time.Second, func(c context.Context) error {
		a.sched.Stop(c)
		return nil
	})
	step("loops", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("storage", 1*time.Second, func(c context.Context) error {
		return a.store.Close()
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// notifyReady tells systemd the daemon is up and starts the watchdog
// heartbeat when one is configured. Both are no-ops outside systemd.
func (a *App) notifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}
	a.log.Debug("systemd readiness notified")

	iv, err := daemon.SdWatchdogEnabled(false)
	if err != nil || iv <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(iv / 2)
		defer t.Stop()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
