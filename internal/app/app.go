// Package app wires the bot together and owns its lifecycle: start order,
// config hot reload and bounded shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"matchbot/internal/commands"
	"matchbot/internal/config"
	"matchbot/internal/detector"
	"matchbot/internal/dispatch"
	"matchbot/internal/eventbus"
	"matchbot/internal/feed"
	"matchbot/internal/httpapi"
	"matchbot/internal/match"
	"matchbot/internal/render"
	"matchbot/internal/runtime/supervisor"
	"matchbot/internal/storage"
	"matchbot/internal/subscriptions"
	"matchbot/internal/task/engine"
	"matchbot/internal/task/scheduler"
	"matchbot/internal/tracker"
	kit "matchbot/internal/transport"
	telegram "matchbot/internal/transport/telegram/adapter"
	"matchbot/internal/transport/telegram/router"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
	"matchbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	sups *supervisor.Registry

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	metrics *metrics.Manager
	store   storage.Store

	feed     *feed.Client
	subs     *subscriptions.Registry
	renderer *render.Renderer
	disp     *dispatch.Dispatcher
	tracker  *tracker.Tracker

	adapter *telegram.Adapter
	router  *router.Router

	engine *engine.Service
	sched  *scheduler.Service
	http   *httpapi.Server

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	// the chat sink stays idle until the adapter is installed as poster
	logSvc, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.Comp("app"))

	m := metrics.New(metrics.WithRuntimeCollectors())
	bus := eventbus.New()

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, root.With(logx.Comp("storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	// everything after this point must close the store on failure
	a, err := build(cfg, cfgm, logSvc, root, m, bus, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, cfgm *config.ConfigManager, logSvc *logx.Service, root logx.Logger, m *metrics.Manager, bus eventbus.Bus, store storage.Store) (*App, error) {
	team := match.NewTeam(cfg.Feed.TeamNames, cfg.DisplayName())

	cat, err := render.LoadCatalog(cfg.Tracker.DefaultLanguage, cfg.Render.LocalesDir)
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return nil, err
	}
	media, err := mapMedia(cfg.Render.Media)
	if err != nil {
		return nil, err
	}
	rend := render.New(cat, render.Options{Team: team, Media: media, Location: loc})

	ad, err := telegram.New(mapAdapterConfig(cfg), root.With(logx.Comp("telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetChatPoster(ad)

	fc := feed.New(mapFeedConfig(cfg), root, feed.WithMetrics(m))
	subs := subscriptions.New(store, root.With(logx.Comp("subscriptions")),
		subscriptions.WithBus(bus), subscriptions.WithMetrics(m))
	disp := dispatch.New(mapDispatchConfig(cfg), ad, root.With(logx.Comp("dispatch")),
		dispatch.WithMetrics(m), dispatch.WithBus(bus))

	tr := tracker.New(tracker.Config{
		Team:            team,
		DefaultLanguage: cat.Default(),
		Presence:        cfg.Tracker.Presence,
	}, tracker.Deps{
		Feed:       fc,
		Store:      detector.NewStore(store, detector.New(team).Baseline()),
		Subs:       subs,
		Renderer:   rend,
		Dispatcher: disp,
		Presence:   ad,
		Metrics:    m,
		Bus:        bus,
	}, root.With(logx.Comp("tracker")))

	eng := engine.New(mapEngineConfig(cfg), root.With(logx.Comp("taskengine")), bus)
	schedLog := root.With(logx.Comp("scheduler"))
	sched := scheduler.New(mapSchedulerConfig(cfg), eng, schedLog, scheduler.WithSkipHook(func(name string) {
		schedLog.Debug("trigger skipped, previous run still busy", logx.String("schedule", name))
	}))

	sups := supervisor.NewRegistry()
	rt := router.New(root.With(logx.Comp("router")), ad, cfg.Telegram.OwnerUserIDs,
		router.WithMetrics(m),
		router.WithTexts(commands.Texts(tr, rend)),
		router.WithSupervisors(sups),
	)

	a := &App{
		cfgm:     cfgm,
		sups:     sups,
		log:      root.With(logx.Comp("app")),
		logs:     logSvc,
		bus:      bus,
		metrics:  m,
		store:    store,
		feed:     fc,
		subs:     subs,
		renderer: rend,
		disp:     disp,
		tracker:  tr,
		adapter:  ad,
		router:   rt,
		engine:   eng,
		sched:    sched,
		updates:  make(chan kit.Update, 256),
	}
	if cfg.HTTP.Enabled {
		a.http = httpapi.New(mapHTTPConfig(cfg), httpapi.Deps{
			Tracker:     tr,
			Engine:      eng,
			Scheduler:   sched,
			Supervisors: sups,
			Metrics:     m,
			Bus:         bus,
		}, root.With(logx.Comp("httpapi")))
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if err := a.subs.Load(ctx); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if err := a.tracker.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	a.metrics.SetSubscriptions(a.subs.Len())

	// The engine outlives the app context so Stop can let an in-flight
	// tick finish before cancelling it.
	a.engine.Start(context.WithoutCancel(a.sup.Context()))
	cfg := a.cfgm.Get()
	spec, timeout := tickScheduleOf(cfg)
	if err := a.sched.AddSchedule(tickSchedule, spec, timeout, a.tracker.Tick); err != nil {
		return fmt.Errorf("tracker.schedule: %w", err)
	}
	a.sched.Start(a.sup.Context())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sups.Set("telegram.adapter", a.adapter.Supervisor())

	a.router.SetCommands(a.sup.Context(), commands.Build(commands.Deps{
		Tracker:   a.tracker,
		Renderer:  a.renderer,
		Directory: a.adapter,
		Sender:    a.adapter,
	}))
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if a.http != nil {
		a.sup.Go("http.api", a.http.Run)
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })
	a.sup.Go("systemd.watchdog", func(c context.Context) error { return systemd.Watchdog(c, a.log) })

	// first tick right away instead of one interval from now
	if err := a.sched.RunNow(tickSchedule); err != nil {
		a.log.Warn("initial tick not queued", logx.Err(err))
	}

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	_, _ = systemd.Status(fmt.Sprintf("tracking %s, %d subscriptions", cfg.DisplayName(), a.subs.Len()))
	a.log.Info("app started",
		logx.String("team", cfg.DisplayName()),
		logx.String("schedule", spec),
		logx.Int("subscriptions", a.subs.Len()),
		logx.Bool("http", a.http != nil),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// no new triggers, then cancel the run context so loops start unwinding
	a.sched.Stop(ctx)
	a.sup.Cancel()

	a.step(ctx, "tick", 10*time.Second, a.engine.Drain)
	a.step(ctx, "taskengine", 2*time.Second, a.engine.Stop)
	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 6*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
