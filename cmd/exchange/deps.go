package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/classroom-exchange/internal/config"
	"github.com/atmx/classroom-exchange/internal/execution"
	"github.com/atmx/classroom-exchange/internal/refdata"
	"github.com/atmx/classroom-exchange/internal/risk"
	"github.com/atmx/classroom-exchange/internal/sim"
	"github.com/atmx/classroom-exchange/internal/store"
	"github.com/atmx/classroom-exchange/internal/tick"
)

const tickLockKey = "exchange:tick"

// deps holds everything a command needs, plus the cleanup for it.
type deps struct {
	cfg     *config.Config
	store   store.Store
	lock    tick.Locker
	ref     sim.Reference
	cleanup []func()
}

func (d *deps) Close() {
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
}

// openDeps connects the portfolio store: PostgreSQL when a database URL is
// set, JSON files otherwise. With a Redis URL the store gets a read-through
// cache and ticks take a cross-process lock.
func openDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{cfg: cfg}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		d.cleanup = append(d.cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if cfg.Database.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				d.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		d.store = pg
		slog.Info("connected to PostgreSQL")
	} else {
		fs, err := store.NewFileStore(cfg.PortfolioDir())
		if err != nil {
			return nil, err
		}
		d.store = fs
		slog.Info("using file portfolio store", "dir", cfg.PortfolioDir())
	}

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		d.cleanup = append(d.cleanup, func() { rdb.Close() })
		d.store = store.NewCachedStore(d.store, rdb, cfg.Redis.CacheTTL.Duration)
		d.lock = store.NewTickLock(rdb, tickLockKey, cfg.Redis.LockTTL.Duration)
		slog.Info("Redis cache and tick lock enabled")
	}

	ref, err := loadReference(cfg.Paths.SecurityMaster)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.ref = ref
	return d, nil
}

// loadReference reads the security master. A missing file is not an error:
// tickers then fall back to the default sector.
func loadReference(path string) (sim.Reference, error) {
	m, err := refdata.LoadCSV(path)
	if errors.Is(err, refdata.ErrNotFound) {
		slog.Warn("security master not found, using default sectors", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("security master loaded", "path", path, "securities", m.Len())
	return m, nil
}

// newRunner builds the engine and execution pipeline for the configured
// mode and wires them to the store.
func (d *deps) newRunner() (*tick.Runner, error) {
	engine, err := sim.NewEngine(d.cfg.SimConfig(), d.cfg.SimMode())
	if err != nil {
		return nil, err
	}
	pipeline, err := execution.NewPipeline(d.cfg.ExecutionConfig(), risk.NewGate(d.cfg.MaxPositionWeight()))
	if err != nil {
		return nil, err
	}
	p := d.cfg.Paths
	return tick.NewRunner(engine, pipeline, d.store, tick.Options{
		Paths: tick.Paths{
			MarketState:     p.MarketState,
			PricesOut:       p.PricesOut,
			NewsOut:         p.NewsOut,
			ReportsDir:      p.ReportsDir,
			LeaderboardsDir: p.LeaderboardsDir,
			SiteDataDir:     p.SiteDataDir,
		},
		Start:       d.cfg.Start(),
		InitialCash: d.cfg.InitialCash(),
		HistoryLen:  d.cfg.Server.HistoryLen,
		Reference:   d.ref,
		Lock:        d.lock,
	}), nil
}
