package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkguard/internal/commands"
	"linkguard/internal/config"
	"linkguard/internal/eventbus"
	"linkguard/internal/notifier"
	"linkguard/internal/observability/debughttp"
	"linkguard/internal/rotation"
	"linkguard/internal/runtime/supervisor"
	"linkguard/internal/settings"
	"linkguard/internal/storage"
	kit "linkguard/internal/transport"
	telegram "linkguard/internal/transport/telegram/adapter"
	"linkguard/internal/transport/telegram/router"
	"linkguard/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	settings *settings.Store
	trigger  *rotation.CronTrigger
	sched    *rotation.Scheduler
	handlers *commands.Handlers
	cmdm     *router.CommandManager
	alerts   *notifier.Service
	debug    *debughttp.Service

	updates chan kit.Update
}

func New(ov config.EnvOverrides) (*App, error) {
	cfgm := config.NewConfigManager(ov.ConfigPath, ov)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off, set the target, then apply the
	// final config so Apply doesn't warn about a missing target.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, ok := groupLogChat(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		log.Warn("no owner configured; every command will be refused (set OWNER_ID)")
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

	rt, err := mapRuntime(cfg)
	if err != nil {
		return nil, err
	}

	st := settings.New(mapRotationSeed(cfg), store, log)
	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ok, err := st.Load(loadCtx); err != nil {
		log.Warn("stored settings unreadable; using config file", logx.Err(err))
	} else if ok {
		log.Info("settings restored from storage")
	}

	bus := eventbus.New()
	rotLog := log.With(logx.String("comp", "rotation"))
	trig := rotation.NewCronTrigger(rotLog)
	sched := rotation.NewScheduler(st,
		rotation.NewGenerator(ad, rt.concurrency, rotLog),
		rotation.NewPublisher(ad, rotation.PublisherOptions{Retries: rt.retries, RetryBase: rt.retryBase}, rotLog),
		rotation.SchedulerOptions{
			Trigger:      trig,
			Bus:          bus,
			State:        st,
			CycleTimeout: rt.cycleTimeout,
			HistorySize:  rt.historySize,
			Logger:       log,
		},
	)
	if ps, ok, err := st.LoadPublishState(loadCtx); err != nil {
		log.Warn("stored publish state unreadable", logx.Err(err))
	} else if ok {
		sched.Restore(ps)
	}
	st.OnChange(sched.Reconfigure)

	acfg, err := mapAlertsConfig(cfg)
	if err != nil {
		return nil, err
	}
	alerts := notifier.New(acfg, ad, cfg.Telegram.OwnerUserIDs, log, bus)

	handlers := commands.New(st, sched, bus, log)
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs)
	handlers.SetHelp(cmdm.HelpText)

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		settings: st,
		trigger:  trig,
		sched:    sched,
		handlers: handlers,
		cmdm:     cmdm,
		alerts:   alerts,
		debug:    debughttp.New(log, sched.Status),
		updates:  make(chan kit.Update, 256),
	}, nil
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
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapRuntime(cfg); err != nil {
			return err
		}
		if _, err := mapAlertsConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.cmdm.SetRegistry(a.sup.Context(), a.handlers.Commands())
	// Subscribe before autostart so the first cycle can alert.
	a.alerts.Start(a.sup.Context())
	a.debug.Apply(a.sup.Context(), mapDebugConfig(a.cfgm.Get()))

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.store != nil {
		a.sup.Go0("audit.recorder", func(c context.Context) {
			runAuditRecorder(c, a.bus, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	if a.settings.Snapshot().Autostart {
		a.sup.Go0("rotation.autostart", func(c context.Context) {
			rep, err := a.sched.Start(c)
			switch {
			case errors.Is(err, rotation.ErrAlreadyRunning):
			case err != nil:
				a.log.Warn("autostart failed", logx.Err(err))
			default:
				a.log.Info("rotation resumed", logx.String("outcome", string(rep.Outcome)))
			}
		})
	}

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
				a.applyConfig(lastApplied, newCfg)
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

// applyConfig applies the live-reloadable parts of a new config: logging,
// the log group target, the owner list and the debug server.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "storage", "runtime", "alerts":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		case "rotation":
			a.log.Info("rotation block changed; live settings are managed by commands")
		}
	}

	if chatID, ok := groupLogChat(next); ok {
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(next))
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.alerts.SetOwners(next.Telegram.OwnerUserIDs)
	a.debug.Apply(a.sup.Context(), mapDebugConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

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
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The rotation job is halted but Autostart is kept, so it resumes on
	// the next boot.
	step("rotation", 5*time.Second, func(c context.Context) error {
		if err := a.sched.Stop(); err != nil && !errors.Is(err, rotation.ErrNotRunning) {
			return err
		}
		return a.trigger.Stop(c)
	})
	step("debug", time.Second, func(c context.Context) error {
		a.debug.Stop(c)
		return nil
	})
	step("alerts", time.Second, func(c context.Context) error { return a.alerts.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
