// Package app wires configuration, logging, the catalog client, the
// subscription store and the broadcast scheduler into one daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sage/internal/broadcast"
	"sage/internal/catalog"
	"sage/internal/config"
	"sage/internal/runtime/supervisor"
	"sage/internal/storage"
	"sage/internal/subscriber"
	"sage/internal/transport/telegram"
	logx "sage/pkg/logx"
)

type App struct {
	cfgm    *config.ConfigManager
	secrets config.Secrets

	log  logx.Logger
	logs *logx.Service

	sender  *telegram.Adapter
	catalog *catalog.Client
	store   storage.Store
	cache   *subscriber.Cache
	bcast   *broadcast.Scheduler

	sup *supervisor.Supervisor
}

// New loads the config and builds every component. The catalog credential
// is required; a missing one fails here rather than on the first tick.
func New(ctx context.Context, cfgPath string, secrets config.Secrets) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Logging comes up console-only first; the chat sink needs the adapter.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)
	appLog := log.With(logx.String("comp", "app"))

	cleanup := func() { _ = logSvc.Close() }

	cc, err := mapCatalogConfig(cfg, secrets)
	if err != nil {
		cleanup()
		return nil, err
	}
	client, err := catalog.New(cc, catalog.WithLogger(log.With(logx.String("comp", "catalog"))))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w (set %s)", err, config.EnvCatalogToken)
	}

	tc, err := mapTelegramConfig(cfg, secrets)
	if err != nil {
		cleanup()
		return nil, err
	}
	ad, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("telegram: %w (set %s)", err, config.EnvBotToken)
	}
	logSvc.SetSender(ad)
	logSvc.Apply(logCfg)

	sc, err := mapStorageConfig(cfg, secrets)
	if err != nil {
		cleanup()
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		cleanup()
		if errors.Is(err, storage.ErrDisabled) {
			return nil, errors.New("storage.driver is required: subscriptions must come from a store")
		}
		return nil, err
	}

	every, err := mapRefreshEvery(cfg)
	if err != nil {
		_ = store.Close()
		cleanup()
		return nil, err
	}
	cache := subscriber.NewCache(store, every, log.With(logx.String("comp", "subscriber")))

	bc, err := mapBroadcastConfig(cfg)
	if err != nil {
		_ = store.Close()
		cleanup()
		return nil, err
	}
	sched := broadcast.New(bc, broadcast.Deps{
		Reader:  cache,
		Fetcher: client,
		Sender:  ad,
		Log:     log.With(logx.String("comp", "broadcast")),
	})

	appLog.Info("app initialized",
		logx.String("storage", sc.Driver),
		logx.Duration("interval", bc.Interval),
		logx.String("secrets", secrets.String()),
	)
	return &App{
		cfgm:    cfgm,
		secrets: secrets,
		log:     appLog,
		logs:    logSvc,
		sender:  ad,
		catalog: client,
		store:   store,
		cache:   cache,
		bcast:   sched,
	}, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Broadcaster exposes the scheduler for status output.
func (a *App) Broadcaster() *broadcast.Scheduler { return a.bcast }

// Start launches the subscriber refresh, the broadcast loop and the config
// watcher, then reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	// run_on_start ticks immediately; it must not race the first load.
	if err := a.cache.Refresh(ctx); err != nil {
		a.log.Warn("initial subscriber load failed", logx.Err(err))
	}

	a.sup.GoRestart("subscriber.refresh", a.cache.Run)
	a.sup.GoRestart("broadcast", a.bcast.Run)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.applyLoop(ctx, sub)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started")
	return nil
}

// validateReload rejects a reload whose live sections can't be mapped.
func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapBroadcastConfig(cfg); err != nil {
		return err
	}
	_, err := mapRefreshEvery(cfg)
	return err
}

// applyLoop applies hot-reloadable sections. Others are logged as needing a
// restart.
func (a *App) applyLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			sections, fields := config.SummarizeConfigChange(last, cfg)
			if len(sections) == 0 {
				continue
			}
			a.log.Info("config change applied", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)

			a.logs.Apply(mapLogConfig(cfg))
			if bc, err := mapBroadcastConfig(cfg); err == nil {
				a.bcast.Apply(bc)
			} else {
				a.log.Warn("broadcast config not applied", logx.Err(err))
			}
			if rs := config.RestartRequired(sections); len(rs) > 0 {
				a.log.Warn("restart required for config changes", logx.Strings("sections", rs))
			}
			last = cfg
		}
	}
}

// TickOnce refreshes the subscriber snapshot and runs a single broadcast.
func (a *App) TickOnce(ctx context.Context) (broadcast.Report, error) {
	if err := a.cache.Refresh(ctx); err != nil {
		return broadcast.Report{}, fmt.Errorf("load subscribers: %w", err)
	}
	return a.bcast.Tick(ctx), nil
}

// Stop cancels every loop, waits up to ctx for them and releases resources.
func (a *App) Stop(ctx context.Context) {
	start := time.Now()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("shutdown incomplete", logx.Err(err), logx.Int64("active", a.sup.Active()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close failed", logx.Err(err))
		}
	}
	a.log.Info("app stopped", logx.Duration("took", time.Since(start)))
	_ = a.logs.Close()
}
