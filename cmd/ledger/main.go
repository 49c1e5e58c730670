// Command ledger runs live ingestion, the analytics API and the metrics
// endpoint until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-holder-ledger/internal/analytics"
	"solana-holder-ledger/internal/api"
	"solana-holder-ledger/internal/app"
	"solana-holder-ledger/internal/config"
	"solana-holder-ledger/internal/feed"
	"solana-holder-ledger/internal/ingestion"
	"solana-holder-ledger/internal/logging"
	"solana-holder-ledger/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.Storage.ClickHouseDSN, "ClickHouse connection string (empty keeps snapshots in memory)")
	redisURL := flag.String("redis-url", cfg.Storage.RedisURL, "Redis URL for the signature cache (empty uses memory)")
	wsURL := flag.String("ws-url", cfg.Feed.WebsocketURL, "Trade feed websocket URL")
	historyURL := flag.String("history-url", cfg.Feed.HistoryURL, "Trade history REST base URL")
	tokens := flag.String("tokens", os.Getenv("FEED_TOKENS"), "Comma-separated token addresses to track")
	backfill := flag.Bool("backfill", true, "Backfill tracked tokens from the history source on startup")
	httpAddr := flag.String("http-addr", cfg.Server.HTTPAddr, "Analytics API address")
	metricsAddr := flag.String("metrics-addr", cfg.Server.MetricsAddr, "Prometheus metrics HTTP address (empty to disable)")
	useMemory := flag.Bool("use-memory", cfg.App.UseMemory, "Use in-memory storage instead of PostgreSQL")
	logLevel := flag.String("log-level", cfg.App.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.ClickHouseDSN = *clickhouseDSN
	cfg.Storage.RedisURL = *redisURL
	cfg.Feed.WebsocketURL = *wsURL
	cfg.Feed.HistoryURL = *historyURL
	cfg.Feed.Tokens = config.SplitList(*tokens)
	cfg.Server.HTTPAddr = *httpAddr
	cfg.Server.MetricsAddr = *metricsAddr
	cfg.App.UseMemory = *useMemory
	cfg.App.LogLevel = *logLevel

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Feed.WebsocketURL == "" {
		logger.Fatal("--ws-url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *backfill, logger); err != nil {
		logger.Fatal("ledger stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, backfill bool, logger *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	l := app.NewLedger(stores, cfg, logger)

	queue := ingestion.NewQueue(ingestion.QueueOptions{Applier: l.Processor, Logger: logger})
	dispatcher := ingestion.NewDispatcher(ingestion.DispatcherOptions{
		Queue:    queue,
		Registry: l.Registry,
		Logger:   logger,
	})

	streamCfg := feed.DefaultStreamConfig()
	streamCfg.URL = cfg.Feed.WebsocketURL
	streamCfg.Tokens = cfg.Feed.Tokens
	streamCfg.Logger = logger
	stream := feed.NewStreamClient(streamCfg)
	defer stream.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:     stream,
		Dispatcher: dispatcher,
		Queue:      queue,
		Cleaner:    l.Engine,
		Logger:     logger,
	})

	snapshotter := analytics.NewSnapshotter(analytics.SnapshotterOptions{
		Aggregator: l.Aggregator,
		Store:      stores.Snapshots,
		Interval:   cfg.Analytics.SnapshotInterval,
		Logger:     logger,
	})

	server := api.NewServer(l.Aggregator, logger,
		api.WithSnapshots(stores.Snapshots),
		api.WithQueueStatus(func() (string, int) {
			return queue.State().String(), queue.Len()
		}),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return snapshotter.Run(gctx) })
	g.Go(func() error { return serve(gctx, cfg.Server.HTTPAddr, server.Handler(), logger) })

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		g.Go(func() error { return serve(gctx, cfg.Server.MetricsAddr, mux, logger) })
	}

	if backfill && cfg.Feed.HistoryURL != "" && len(cfg.Feed.Tokens) > 0 {
		backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
			Source: feed.NewHistorySource(feed.HistoryConfig{
				BaseURL: cfg.Feed.HistoryURL,
				RPS:     cfg.Feed.HistoryRPS,
				Logger:  logger,
			}),
			Processor: l.Processor,
			Queue:     queue,
			Logger:    logger,
		})
		g.Go(func() error {
			results, err := backfiller.BackfillTokens(gctx, cfg.Feed.Tokens)
			for _, r := range results {
				logger.Info("startup backfill finished",
					zap.String("token", r.TokenAddress),
					zap.Int("fetched", r.Fetched),
					zap.Int("applied", r.Applied),
					zap.Int("duplicates", r.Duplicates),
					zap.Int("errors", r.Errors),
				)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				// Live ingestion continues without history.
				logger.Error("startup backfill failed", zap.Error(err))
			}
			return nil
		})
	}

	logger.Info("ledger started",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Strings("tokens", cfg.Feed.Tokens),
		zap.Bool("memory", cfg.App.UseMemory),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serve runs an HTTP server until ctx is done.
func serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.String("addr", addr), zap.Error(err))
		}
	}()

	logger.Info("http server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}
