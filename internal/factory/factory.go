package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/wordquizzle/internal/api"
	"github.com/mcoot/wordquizzle/internal/config"
	"github.com/mcoot/wordquizzle/internal/dependencies/clock"
	"github.com/mcoot/wordquizzle/internal/dependencies/random"
	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/matchmaking"
	"github.com/mcoot/wordquizzle/internal/registry"
	"github.com/mcoot/wordquizzle/internal/storage"
	"github.com/mcoot/wordquizzle/internal/storage/file"
	"github.com/mcoot/wordquizzle/internal/storage/memory"
	redisstorage "github.com/mcoot/wordquizzle/internal/storage/redis"
	"github.com/mcoot/wordquizzle/internal/tcp"
	"github.com/mcoot/wordquizzle/internal/workerpool"
)

// App contains all wired application components
type App struct {
	Config config.Config
	Logger *slog.Logger

	// Storage
	Store storage.SnapshotStore

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Engine match.Engine

	// Services
	Registry    *registry.Registry
	Persister   *registry.Persister
	Pool        *workerpool.Pool
	TCP         *tcp.Server
	Matchmaking *matchmaking.Service

	// API is nil when the admin API is disabled
	API *api.Server

	// Restored reports whether the registry was loaded from a snapshot
	Restored bool
}

// NewStore creates the snapshot store selected by cfg
func NewStore(cfg config.StorageConfig) (storage.SnapshotStore, error) {
	switch cfg.Type {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageFile:
		return file.New(cfg.SnapshotPath), nil
	case config.StorageRedis:
		store, err := redisstorage.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Type)
	}
}

// NewDictionary loads the configured word list, or the built in pairs when
// no path is set
func NewDictionary(cfg config.MatchConfig) (*match.Dictionary, error) {
	dict := match.NewDictionary()
	if cfg.DictionaryPath == "" {
		return dict, dict.LoadPairs(match.DefaultPairs)
	}
	if err := dict.LoadFromFile(cfg.DictionaryPath); err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	return dict, nil
}

// New creates a new application with all dependencies wired and the
// registry restored from the latest snapshot
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := NewStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	dict, err := NewDictionary(cfg.Match)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	clk := clock.New()
	rnd := random.New()
	engine := match.NewService(cfg.Match.Engine, dict, clk, rnd, logger.With(slog.String("component", "match")))

	app := newWithDependencies(cfg, store, clk, rnd, engine, logger)
	if err := app.restore(ctx); err != nil {
		closeStore(store)
		return nil, err
	}
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(cfg config.Config, store storage.SnapshotStore, clk clock.Clock, rnd random.Random, engine match.Engine, logger *slog.Logger) *App {
	reg := registry.New(engine, clk, cfg.Registry, logger)
	pool := workerpool.New(cfg.Workers, logger)
	handler := tcp.NewHandler(reg, engine, logger)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Clock:       clk,
		Random:      rnd,
		Engine:      engine,
		Registry:    reg,
		Persister:   registry.NewPersister(reg, store, cfg.Storage.SnapshotInterval, logger),
		Pool:        pool,
		TCP:         tcp.NewServer(cfg.TCP, handler, pool, logger),
		Matchmaking: matchmaking.New(cfg.UDP, reg, clk, logger),
	}

	if cfg.HTTP.Addr != "" {
		router := api.NewRouter(api.RouterConfig{Logger: logger, Registry: reg})
		app.API = api.NewServer(router, cfg.HTTP, logger)
	}
	return app
}

func (a *App) restore(ctx context.Context) error {
	restored, err := registry.Load(ctx, a.Registry, a.Store)
	if err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}
	a.Restored = restored
	if !restored {
		a.Logger.Info("no snapshot found, starting empty")
	}
	return nil
}

// Listen binds every socket so that bind errors surface before Run
func (a *App) Listen() error {
	if err := a.TCP.Listen(); err != nil {
		return err
	}
	if err := a.Matchmaking.Listen(); err != nil {
		return err
	}
	if a.API != nil {
		if err := a.API.Listen(); err != nil {
			return err
		}
	}
	return nil
}

// Run serves until ctx is cancelled or a component fails. Shutdown stops
// the listeners, drains the worker pool and writes a final snapshot, in
// that order.
func (a *App) Run(ctx context.Context) error {
	persistCtx, stopPersister := context.WithCancel(context.WithoutCancel(ctx))
	persistDone := make(chan error, 1)
	go func() {
		persistDone <- a.Persister.Run(persistCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.TCP.Serve(gctx)
	})
	g.Go(func() error {
		return a.Matchmaking.Run(gctx)
	})
	if a.API != nil {
		g.Go(func() error {
			return a.API.Run(gctx)
		})
	}
	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.Pool.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("worker pool did not drain", slog.String("error", err.Error()))
	}

	stopPersister()
	persistErr := <-persistDone
	closeStore(a.Store)

	return errors.Join(runErr, persistErr)
}

func closeStore(store storage.SnapshotStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}
