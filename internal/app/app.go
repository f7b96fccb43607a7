// Package app wires configuration, storage, the Telegram adapter, and the
// background engines into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vexx32/thread-tracker/internal/config"
	"github.com/vexx32/thread-tracker/internal/digest"
	"github.com/vexx32/thread-tracker/internal/reply"
	"github.com/vexx32/thread-tracker/internal/services/dispatch"
	"github.com/vexx32/thread-tracker/internal/services/notify"
	"github.com/vexx32/thread-tracker/internal/services/watch"
	"github.com/vexx32/thread-tracker/internal/storage"
	"github.com/vexx32/thread-tracker/internal/tracker"
	"github.com/vexx32/thread-tracker/internal/transport/telegram"
	logx "github.com/vexx32/thread-tracker/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter *telegram.Adapter

	trackerSvc  *tracker.Service
	watchSvc    *watch.Service
	notifySvc   *notify.Service
	dispatchSvc *dispatch.Service

	cron  *cron.Cron
	cfgCh chan *config.Config

	runMu     sync.Mutex
	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
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

	adapter, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  cfg.PollTimeout(10 * time.Second),
		RatePerSec:   cfg.Telegram.RatePerSec,
		HistoryDepth: cfg.RecentHistory(),
	}, logSvc.Logger())
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	renderer := digest.NewRenderer(store, reply.NewResolver(adapter), logSvc.Logger())
	notifySvc := notify.New(store, adapter, logSvc.Logger())
	watchSvc := watch.New(store, renderer, adapter, notifySvc, logSvc.Logger())
	dispatchSvc := dispatch.New(store, adapter, logSvc.Logger())
	trackerSvc := tracker.New(store, renderer, adapter, watchSvc, notifySvc, logSvc.Logger())

	return &App{
		cfgm:        cfgm,
		logs:        logSvc,
		log:         log,
		store:       store,
		adapter:     adapter,
		trackerSvc:  trackerSvc,
		watchSvc:    watchSvc,
		notifySvc:   notifySvc,
		dispatchSvc: dispatchSvc,
	}, nil
}

// Tracker exposes the command facade for whatever surface is bolted on top.
func (a *App) Tracker() *tracker.Service { return a.trackerSvc }

// Start launches polling, the tick schedules, and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.runCancel != nil {
		a.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runCtx = runCtx
	a.runCancel = cancel
	a.runMu.Unlock()

	if err := a.adapter.Start(runCtx, nil); err != nil {
		return err
	}

	cfg := a.cfgm.Get()
	cl := cronLogger{a.log}
	// Single-flight per job: a slow refresh pass absorbs its next tick
	// instead of stacking a second pass behind it.
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))

	a.cron = cron.New()
	a.cron.Schedule(cron.Every(cfg.RefreshInterval()), chain.Then(a.tickJob("refresh", a.watchSvc.Tick)))
	a.cron.Schedule(cron.Every(cfg.DispatchInterval()), chain.Then(a.tickJob("dispatch", a.dispatchSvc.Tick)))
	a.cron.Start()

	a.cfgCh = a.cfgm.Subscribe(1)
	a.runWG.Add(2)
	go func() {
		defer a.runWG.Done()
		_ = a.cfgm.Watch(runCtx)
	}()
	go func() {
		defer a.runWG.Done()
		a.consumeReloads(runCtx)
	}()

	a.log.Info("started",
		logx.Duration("refresh_interval", cfg.RefreshInterval()),
		logx.Duration("dispatch_interval", cfg.DispatchInterval()))
	return nil
}

func (a *App) tickJob(name string, tick func(context.Context) error) cron.Job {
	return cron.FuncJob(func() {
		a.runMu.Lock()
		ctx := a.runCtx
		a.runMu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if err := tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("tick failed", logx.String("task", name), logx.Err(err))
		}
	})
}

// consumeReloads applies hot-reloadable settings. Interval and transport
// changes need a restart; only logging takes effect live.
func (a *App) consumeReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Stop shuts everything down, letting in-flight ticks finish within the
// context's deadline.
func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}

	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}

	cancel()
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}

	err := a.store.Close()
	a.log.Info("stopped")
	a.logs.Close()
	return err
}

// cronLogger bridges robfig/cron's logger to ours.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, logx.Any("details", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, logx.Err(err), logx.Any("details", kv))
}
