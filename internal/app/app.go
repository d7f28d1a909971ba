package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aquakeep/internal/config"
	"aquakeep/internal/event"
	"aquakeep/internal/eventbus"
	"aquakeep/internal/notify"
	"aquakeep/internal/scheduler"
	"aquakeep/internal/storage"
	logx "aquakeep/pkg/logx"
)

const (
	jobProcessReminders = "events.process_reminders"
	jobProcessOverdue   = "events.process_overdue"

	defaultReminderInterval = "5m"
	defaultOverdueInterval  = "@hourly"
	jobTimeout              = 2 * time.Minute
)

// App wires the config manager, logging service, repository, bus, event
// engine, scheduler and notification forwarder into one process.
type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	repo event.Repository

	events *event.Service
	sched  *scheduler.Service
	fwd    *notify.Forwarder

	// running process settings; reload diffs against these to flag
	// sections that need a restart
	storageCfg storage.Config
	notifyCfg  notify.Config

	mu       sync.Mutex
	cancel   context.CancelFunc
	cfgCh    chan *config.Config
	reloadWG sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
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

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	events := event.NewService(repo, bus, mapLimits(cfg.Limits), log.With(logx.String("comp", "events")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, bus, log.With(logx.String("comp", "scheduler")))

	nc := mapNotifyConfig(cfg)
	fwd := notify.NewForwarder(nc, bus, nil, log.With(logx.String("comp", "notify")))

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		repo:       repo,
		events:     events,
		sched:      sched,
		fwd:        fwd,
		storageCfg: sc,
		notifyCfg:  nc,
	}, nil
}

// Events exposes the domain service, used by callers embedding the engine.
func (a *App) Events() *event.Service { return a.events }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	cfg := a.cfgm.Get()

	if err := a.registerJobs(cfg); err != nil {
		cancel()
		return err
	}

	a.fwd.Start(runCtx)
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}

	// config hot-reload
	a.cfgCh = a.cfgm.Subscribe(2)
	a.reloadWG.Add(2)
	go func() {
		defer a.reloadWG.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	go func() {
		defer a.reloadWG.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyReload(runCtx, cfg)
			}
		}
	}()

	a.log.Info("started", logx.Bool("scheduler", a.sched.Enabled()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	a.sched.Stop(ctx)
	a.fwd.Stop()
	a.reloadWG.Wait()
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}

	if c, ok := a.repo.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) registerJobs(cfg *config.Config) error {
	reminderSpec := defaultReminderInterval
	overdueSpec := defaultOverdueInterval
	overdueAt := ""
	if cfg != nil {
		if s := strings.TrimSpace(cfg.Scheduler.ReminderInterval); s != "" {
			reminderSpec = s
		}
		if s := strings.TrimSpace(cfg.Scheduler.OverdueInterval); s != "" {
			overdueSpec = s
		}
		overdueAt = strings.TrimSpace(cfg.Scheduler.OverdueAt)
	}

	if _, err := a.sched.AddSchedule(jobProcessReminders, reminderSpec, jobTimeout, func(ctx context.Context) error {
		return a.events.ProcessReminders(ctx)
	}); err != nil {
		return fmt.Errorf("register %s: %w", jobProcessReminders, err)
	}

	overdueJob := func(ctx context.Context) error {
		return a.events.ProcessOverdueEvents(ctx)
	}
	if overdueAt != "" {
		if _, err := a.sched.AddDaily(jobProcessOverdue, overdueAt, jobTimeout, overdueJob); err != nil {
			return fmt.Errorf("register %s: %w", jobProcessOverdue, err)
		}
		return nil
	}
	if _, err := a.sched.AddSchedule(jobProcessOverdue, overdueSpec, jobTimeout, overdueJob); err != nil {
		return fmt.Errorf("register %s: %w", jobProcessOverdue, err)
	}
	return nil
}

// applyReload pushes a validated config into the running services. Storage
// and notify changes require a restart and are logged, not applied.
func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.log.Info("applying config reload")

	for _, section := range restartRequired(a.storageCfg, a.notifyCfg, cfg) {
		a.log.Warn("config change needs a restart to take effect", logx.String("section", section))
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.events.SetLimits(mapLimits(cfg.Limits))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("scheduler config rejected on reload", logx.Err(err))
		return
	}
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(schedCfg)
	if err := a.registerJobs(cfg); err != nil {
		a.log.Warn("job re-register failed", logx.Err(err))
	}
	switch {
	case schedCfg.Enabled && !wasEnabled:
		a.sched.Start(ctx)
	case !schedCfg.Enabled && wasEnabled:
		a.sched.Stop(ctx)
	}
}
