// Package app wires the reminder stack together: config, logging, storage,
// the Telegram adapter, the delivery engine, the dialog machine, and the
// update router.
package app

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/convo"
	"remindbot/internal/engine"
	"remindbot/internal/eventbus"
	"remindbot/internal/nlu"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/tz"
	logx "remindbot/pkg/logx"
)

// StopReason labels why the app is shutting down; it only feeds logs.
type StopReason string

const (
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	tzr     *tz.Resolver
	adapter kit.Adapter

	engine  *engine.Service
	notif   *notifier.Service
	machine *convo.Machine
	router  *bot.Router
	debug   *pprof.Service

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
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
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	tzr := tz.NewResolver(cfg.Convo.DefaultTimezone)
	if zone := cfg.Convo.DefaultTimezone; zone != "" {
		if _, err := tzr.Lookup(zone); err != nil {
			return nil, fmt.Errorf("convo.default_timezone %q: %w", zone, err)
		}
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	ncfg, err := mapNLUConfig(cfg)
	if err != nil {
		return nil, err
	}
	interp := nlu.NewClient(ncfg, log.With(logx.String("comp", "nlu")))

	notifCfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(notifCfg, ad, log.With(logx.String("comp", "notifier")), bus)

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engSvc := engine.New(engCfg, store, ad, tzr, bus, log.With(logx.String("comp", "engine")))

	convoCfg, err := mapConvoConfig(cfg)
	if err != nil {
		return nil, err
	}
	machine := convo.New(convoCfg, store, tzr, interp, bus, log.With(logx.String("comp", "convo")))

	router := bot.New(bot.Config{
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
	}, ad, machine, notifSvc, bus, log.With(logx.String("comp", "bot")))

	debugSvc := pprof.New(mapDebugConfig(cfg), log)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		tzr:     tzr,
		adapter: ad,
		engine:  engSvc,
		notif:   notifSvc,
		machine: machine,
		router:  router,
		debug:   debugSvc,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		// Reject a bad hot-reload before it reaches any component.
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapConvoConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNLUConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if zone := cfg.Convo.DefaultTimezone; zone != "" {
			if _, err := a.tzr.Lookup(zone); err != nil {
				return fmt.Errorf("convo.default_timezone: invalid %q: %w", zone, err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

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

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
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
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated hot-reload into the live components.
// Storage, Telegram token, and the NLU endpoint only change on restart.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.router.Apply(bot.Config{OwnerUserIDs: cfg.Telegram.OwnerUserIDs})

	if convoCfg, err := mapConvoConfig(cfg); err != nil {
		a.log.Warn("invalid convo config; keeping previous", logx.Err(err))
	} else {
		a.machine.Apply(convoCfg)
	}

	if engCfg, err := mapEngineConfig(cfg); err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.engine.Enabled()
		a.engine.Apply(engCfg)
		if wasEnabled && !engCfg.Enabled {
			a.log.Info("engine disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.engine.Stop(stopCtx)
			cancel()
		} else if !wasEnabled && engCfg.Enabled {
			a.log.Info("engine enabled via config")
			a.engine.Start(ctx)
		}
	}

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if wasEnabled && !ncfg.Enabled {
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		} else if !wasEnabled && ncfg.Enabled {
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.debug.Apply(ctx, mapDebugConfig(cfg))

	for _, s := range sections {
		switch s {
		case "storage", "nlu":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	if len(sections) > 0 {
		fields := append([]logx.Field{logx.Any("changed", sections)}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Unwind background loops first.
	a.sup.Cancel()

	// step bounds each component stop so one laggard can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Engine first so no new deliveries start, then the prompt pipeline,
	// then the transport, then storage.
	step("engine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("debug", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
