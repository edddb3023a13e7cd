// Package app wires the client together with fx.
package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/matheus3301/driftchat/internal/bus"
	"github.com/matheus3301/driftchat/internal/config"
	"github.com/matheus3301/driftchat/internal/delivery"
	"github.com/matheus3301/driftchat/internal/kv"
	"github.com/matheus3301/driftchat/internal/lock"
	"github.com/matheus3301/driftchat/internal/logging"
	"github.com/matheus3301/driftchat/internal/netwatch"
	"github.com/matheus3301/driftchat/internal/outbox"
	"github.com/matheus3301/driftchat/internal/remote"
	"github.com/matheus3301/driftchat/internal/session"
	"github.com/matheus3301/driftchat/internal/status"
	"github.com/matheus3301/driftchat/internal/store"
	intsync "github.com/matheus3301/driftchat/internal/sync"
	"github.com/matheus3301/driftchat/internal/timer"
	"github.com/matheus3301/driftchat/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	Alias       string      // optional override of the configured alias
	Clock       clock.Clock // optional; nil = wall clock
	Remote      remote.Store
	LinkProbe   bool // poll OS interfaces for online/offline edges
}

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("driftchat",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideScheduler,
			provideLock,
			provideStore,
			provideStorage,
			provideRemote,
			provideIdentity,
			provideMonitor,
			provideLinkWatcher,
			provideOutbox,
			provideTimeline,
			provideCoordinator,
			provideReconciler,
			provideSyncEngine,
			provideBroadcaster,
			provideTypingWatcher,
			provideSweeper,
			NewClient,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	return p.Config
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideScheduler(p Params) *timer.Scheduler {
	return timer.New(p.Clock)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second client of the same session.
func provideStore(p Params, _ *lock.Lock, lc fx.Lifecycle, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func provideStorage(p Params, cfg *config.Config, db *store.DB, lc fx.Lifecycle, logger *zap.Logger) (kv.Storage, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		return db, nil
	case "pebble":
		pb, err := kv.OpenPebble(session.PebbleDir(p.SessionName))
		if err != nil {
			return nil, err
		}
		logger.Info("pebble storage opened", zap.String("dir", session.PebbleDir(p.SessionName)))
		lc.Append(fx.StopHook(pb.Close))
		return pb, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func provideRemote(p Params, cfg *config.Config, lc fx.Lifecycle, logger *zap.Logger) (remote.Store, error) {
	if p.Remote != nil {
		return p.Remote, nil
	}
	switch cfg.Remote.Driver {
	case "", "memory":
		logger.Info("using in-process remote store")
		return remote.NewMemory(), nil
	case "redis":
		r := remote.DialRedis(cfg.Remote.Addr, cfg.Remote.Password, cfg.Remote.DB, cfg.Remote.Prefix)
		logger.Info("using redis remote store", zap.String("addr", cfg.Remote.Addr), zap.String("prefix", cfg.Remote.Prefix))
		lc.Append(fx.StopHook(r.Close))
		return r, nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
	}
}

func provideIdentity(p Params, cfg *config.Config, storage kv.Storage) (session.Identity, error) {
	alias := p.Alias
	if alias == "" {
		alias = cfg.Identity.Alias
	}
	return session.LoadIdentity(storage, alias)
}

func provideMonitor(rs remote.Store, sched *timer.Scheduler, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *status.Monitor {
	c := cfg.Connection
	return status.NewMonitor(rs, sched, b, logger.Named("connection"), status.Options{
		BaseDelay:     c.BaseDelay,
		MaxDelay:      c.MaxDelay,
		MaxRetries:    c.MaxRetries,
		ProbeInterval: c.ProbeInterval,
		ProbeTimeout:  c.ProbeTimeout,
	})
}

func provideLinkWatcher(sched *timer.Scheduler, cfg *config.Config, logger *zap.Logger) *netwatch.Watcher {
	return netwatch.New(sched, cfg.Connection.LinkPoll, logger.Named("netwatch"))
}

func provideOutbox(storage kv.Storage, sched *timer.Scheduler, cfg *config.Config, logger *zap.Logger, b *bus.Bus) *outbox.Outbox {
	return outbox.Load(storage, sched, outbox.Options{
		MaxRetries: cfg.Outbox.MaxRetries,
		DrainGap:   cfg.Outbox.DrainGap,
	}, logger.Named("outbox"), b)
}

func provideTimeline(b *bus.Bus) *delivery.Timeline {
	return delivery.NewTimeline(b)
}

func provideCoordinator(rs remote.Store, m *status.Monitor, ob *outbox.Outbox, tl *delivery.Timeline, db *store.DB, sched *timer.Scheduler, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *delivery.Coordinator {
	opts := delivery.DefaultOptions()
	opts.MaxLength = cfg.Delivery.MaxLength
	opts.SendTimeout = cfg.Delivery.SendTimeout
	return delivery.NewCoordinator(delivery.Deps{
		Remote:    rs,
		Conn:      m,
		Outbox:    ob,
		Timeline:  tl,
		History:   db,
		Scheduler: sched,
		Bus:       b,
		Logger:    logger.Named("delivery"),
	}, opts)
}

func provideReconciler(storage kv.Storage, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(storage, logger)
}

func provideSyncEngine(rs remote.Store, tl *delivery.Timeline, db *store.DB, r *intsync.Reconciler, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(rs, tl, db, r, logger.Named("sync"))
}

func typingOptions(cfg *config.Config) typing.Options {
	opts := typing.DefaultOptions()
	t := cfg.Typing
	opts.Timeout = t.Timeout
	opts.Debounce = t.Debounce
	opts.Refresh = t.Refresh
	opts.SweepInterval = t.SweepInterval
	opts.StaleAfter = t.StaleAfter
	return opts
}

func provideBroadcaster(rs remote.Store, sched *timer.Scheduler, id session.Identity, cfg *config.Config, logger *zap.Logger) *typing.Broadcaster {
	return typing.NewBroadcaster(rs, sched, id, typingOptions(cfg), logger.Named("typing"))
}

func provideTypingWatcher(rs remote.Store, sched *timer.Scheduler, b *bus.Bus, id session.Identity, cfg *config.Config, logger *zap.Logger) *typing.Watcher {
	return typing.NewWatcher(rs, sched, b, id.ID, typingOptions(cfg), logger.Named("typing"))
}

func provideSweeper(rs remote.Store, sched *timer.Scheduler, cfg *config.Config, logger *zap.Logger) *typing.Sweeper {
	return typing.NewSweeper(rs, sched, typingOptions(cfg), logger.Named("typing"))
}

type lifecycleParams struct {
	fx.In

	Params      Params
	Lock        *lock.Lock
	Monitor     *status.Monitor
	Link        *netwatch.Watcher
	Engine      *intsync.Engine
	Coordinator *delivery.Coordinator
	Broadcaster *typing.Broadcaster
	Watcher     *typing.Watcher
	Sweeper     *typing.Sweeper
	Scheduler   *timer.Scheduler
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	runCtx, cancel := context.WithCancel(context.Background())
	watcherDone := make(chan struct{})
	followDone := make(chan struct{})
	logger := lp.Logger

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lp.Monitor.Start(ctx)
			logger.Info("connection monitor started", zap.String("status", string(lp.Monitor.Status())))

			if lp.Params.LinkProbe {
				lp.Link.Start(func(up bool) {
					if up {
						lp.Monitor.HandleOnline()
						return
					}
					lp.Monitor.HandleOffline()
				})
			}

			go func() {
				defer close(followDone)
				lp.Engine.Follow(runCtx, lp.Bus)
			}()

			lp.Coordinator.Start(runCtx)

			go func() {
				defer close(watcherDone)
				lp.Watcher.Follow(runCtx, nil)
			}()
			lp.Sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			lp.Sweeper.Stop()
			lp.Broadcaster.Close()
			cancel()
			<-watcherDone
			lp.Coordinator.Stop()
			<-followDone
			lp.Engine.Stop()
			lp.Link.Stop()
			lp.Monitor.Close()
			lp.Scheduler.Close()
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
