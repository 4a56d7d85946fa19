package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/gateway"
	"github.com/ovidiomatos/waweb/internal/lock"
	"github.com/ovidiomatos/waweb/internal/logging"
	"github.com/ovidiomatos/waweb/internal/session"
	"github.com/ovidiomatos/waweb/internal/status"
	"github.com/ovidiomatos/waweb/internal/store"
	intsync "github.com/ovidiomatos/waweb/internal/sync"
	"github.com/ovidiomatos/waweb/internal/wa"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideReconnector,
			provideLock,
			provideStore,
			provideAdapter,
			provideSyncEngine,
			provideHub,
			provideGateway,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideReconnector() *status.Reconnector {
	return status.NewReconnector(status.DefaultReconnectPolicy)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.SnapshotDBPath(p.SessionName)
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
	logger.Info("snapshot store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.SessionName, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideHub(logger *zap.Logger) *gateway.Hub {
	return gateway.NewHub(logger)
}

func provideGateway(hub *gateway.Hub, b *bus.Bus, db *store.DB, adapter *wa.Adapter, machine *status.Machine, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(hub, b, db, adapter, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *wa.Adapter, engine *intsync.Engine, gw *gateway.Gateway, machine *status.Machine, reconnector *status.Reconnector, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine and gateway subscribe before the adapter can
			// produce events, so nothing is lost at startup.
			engine.Start(context.Background())
			gw.Run(context.Background())

			handler := wa.NewEventHandler(b, machine, adapter, reconnector, logger)
			adapter.RegisterEventHandler(handler.Handle)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// StartLogin drives both paths: stored credentials connect
			// straight through, otherwise the QR loop begins.
			go func() {
				if err := adapter.StartLogin(context.Background(), machine); err != nil {
					logger.Error("login failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			reconnector.Stop()
			gw.Stop()
			engine.Stop()
			adapter.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
