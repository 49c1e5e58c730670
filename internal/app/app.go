// Package app wires stores and ledger components from a Config.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/analytics"
	"solana-holder-ledger/internal/config"
	"solana-holder-ledger/internal/ingestion"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/position"
	"solana-holder-ledger/internal/registry"
	"solana-holder-ledger/internal/storage"
	chstore "solana-holder-ledger/internal/storage/clickhouse"
	"solana-holder-ledger/internal/storage/memory"
	"solana-holder-ledger/internal/storage/migrations"
	pgstore "solana-holder-ledger/internal/storage/postgres"
	redisstore "solana-holder-ledger/internal/storage/redis"
)

// Stores holds the persistence backends selected by configuration.
type Stores struct {
	Ledger    storage.Store
	Snapshots storage.ZoneSnapshotStore
	Cache     storage.SignatureCache

	closers []func() error
}

// OpenStores connects the configured backends and runs migrations.
// In memory mode every backend is in-process.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if cfg.App.UseMemory {
		logger.Info("using in-memory storage")
		return &Stores{
			Ledger:    memory.NewStore(),
			Snapshots: memory.NewZoneSnapshotStore(),
			Cache:     memory.NewSignatureCache(cfg.Storage.SignatureTTL),
		}, nil
	}

	s := &Stores{}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		s.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	s.Ledger = pgstore.NewStore(pool)
	logger.Info("connected to postgres")

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		s.Snapshots = chstore.NewZoneSnapshotStore(conn)
		logger.Info("connected to clickhouse")
	} else {
		logger.Warn("CLICKHOUSE_DSN not set, zone snapshots kept in memory")
		s.Snapshots = memory.NewZoneSnapshotStore()
	}

	if cfg.Storage.RedisURL != "" {
		cache, err := redisstore.NewSignatureCache(ctx, cfg.Storage.RedisURL, cfg.Storage.SignatureTTL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, cache.Close)
		s.Cache = cache
		logger.Info("connected to redis")
	} else {
		s.Cache = memory.NewSignatureCache(cfg.Storage.SignatureTTL)
	}

	return s, nil
}

// Close releases backends in reverse order of opening.
func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Ledger bundles the components that share one ledger engine.
type Ledger struct {
	Engine     *ledger.Engine
	Registry   *registry.Registry
	Processor  *ingestion.Processor
	Aggregator *analytics.Aggregator
}

// NewLedger builds the processor and aggregator over stores.
func NewLedger(stores *Stores, cfg *config.Config, logger *zap.Logger) *Ledger {
	engine := ledger.NewEngine(stores.Ledger, ledger.Options{Logger: logger})
	reg := registry.New(stores.Ledger, registry.Options{Logger: logger})
	return &Ledger{
		Engine:   engine,
		Registry: reg,
		Processor: ingestion.NewProcessor(ingestion.ProcessorOptions{
			Store:           stores.Ledger,
			Registry:        reg,
			Updater:         position.NewUpdater(engine, position.Options{Logger: logger}),
			Cache:           stores.Cache,
			StrictAddresses: true,
			Logger:          logger,
		}),
		Aggregator: analytics.NewAggregator(stores.Ledger, engine, analytics.Options{
			Tolerance: cfg.Analytics.ZoneTolerance,
			Band:      cfg.Analytics.PriceBand,
			Logger:    logger,
		}),
	}
}
