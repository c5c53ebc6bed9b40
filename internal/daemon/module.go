package daemon

import (
	"context"

	"github.com/matheus3301/tgbridge/internal/api"
	"github.com/matheus3301/tgbridge/internal/bridge"
	"github.com/matheus3301/tgbridge/internal/bus"
	"github.com/matheus3301/tgbridge/internal/config"
	"github.com/matheus3301/tgbridge/internal/lock"
	"github.com/matheus3301/tgbridge/internal/logging"
	"github.com/matheus3301/tgbridge/internal/loop"
	"github.com/matheus3301/tgbridge/internal/session"
	"github.com/matheus3301/tgbridge/internal/status"
	"github.com/matheus3301/tgbridge/internal/store"
	intsync "github.com/matheus3301/tgbridge/internal/sync"
	"github.com/matheus3301/tgbridge/internal/tgclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const loopQueueSize = 256

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideLoop,
			provideAdapter,
			provideSyncEngine,
			provideBridge,
			provideHTTPServer,
			provideRunner,
			provideActivity,
			NewHealth,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// The lock parameter orders store creation after the lock is held.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
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
	return db, nil
}

func provideLoop(logger *zap.Logger) *loop.Loop {
	return loop.New(loopQueueSize, logger.Named("loop"))
}

func provideAdapter(p Params, logger *zap.Logger) *tgclient.Adapter {
	return tgclient.NewAdapter(p.Config.APIID, p.Config.APIHash, session.TelegramSessionPath(p.SessionName), logger.Named("telegram"))
}

func provideSyncEngine(db *store.DB, adapter *tgclient.Adapter, b *bus.Bus, l *loop.Loop, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, adapter, b, l, logger.Named("sync"))
}

func provideBridge(p Params, l *loop.Loop, adapter *tgclient.Adapter, db *store.DB, b *bus.Bus, logger *zap.Logger) *bridge.Bridge {
	return bridge.New(l, adapter, db, b, p.Config.SendTimeout.Duration, logger.Named("bridge"))
}

func provideHTTPServer(p Params, br *bridge.Bridge, logger *zap.Logger) *api.Server {
	return api.NewServer(p.Config.HTTPAddr, br, logger.Named("http"))
}

func provideRunner(p Params, l *loop.Loop, adapter *tgclient.Adapter, engine *intsync.Engine, machine *status.Machine, logger *zap.Logger) *Runner {
	return NewRunner(l, adapter, engine, machine, p.Config.DialogLimit, p.Config.HistoryLimit, logger)
}

func provideActivity(b *bus.Bus, db *store.DB, logger *zap.Logger) *Activity {
	return NewActivity(b, db, logger.Named("activity"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, health *Health, activity *Activity, httpSrv *api.Server, runner *Runner, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			health.Start()
			activity.Start()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := httpSrv.Start(); err != nil {
				return err
			}

			// Hook contexts end when OnStart returns, so the runner gets its own.
			runner.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := httpSrv.Stop(ctx); err != nil {
				logger.Warn("error stopping HTTP server", zap.Error(err))
			}
			runner.Stop()
			activity.Stop()
			health.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
