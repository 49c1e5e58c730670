// Command backfill applies the trade history of tokens to the ledger once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/app"
	"solana-holder-ledger/internal/config"
	"solana-holder-ledger/internal/feed"
	"solana-holder-ledger/internal/ingestion"
	"solana-holder-ledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	postgresDSN := flag.String("postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	redisURL := flag.String("redis-url", cfg.Storage.RedisURL, "Redis URL for the signature cache (empty uses memory)")
	historyURL := flag.String("history-url", cfg.Feed.HistoryURL, "Trade history REST base URL")
	tokens := flag.String("tokens", os.Getenv("FEED_TOKENS"), "Comma-separated token addresses to backfill")
	rps := flag.Float64("rps", cfg.Feed.HistoryRPS, "History requests per second")
	useMemory := flag.Bool("use-memory", cfg.App.UseMemory, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.RedisURL = *redisURL
	cfg.Feed.HistoryURL = *historyURL
	cfg.Feed.Tokens = config.SplitList(*tokens)
	cfg.Feed.HistoryRPS = *rps
	cfg.App.UseMemory = *useMemory
	// Snapshots are not written by a backfill.
	cfg.Storage.ClickHouseDSN = ""

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Feed.HistoryURL == "" {
		logger.Fatal("--history-url is required")
	}
	if len(cfg.Feed.Tokens) == 0 {
		logger.Fatal("--tokens is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("backfill failed", zap.Error(err))
	}
	if failed > 0 {
		logger.Warn("backfill finished with errors", zap.Int("failed_events", failed))
		os.Exit(2)
	}
	logger.Info("backfill complete")
}

// run returns the number of events that failed to apply.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (int, error) {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer stores.Close()

	l := app.NewLedger(stores, cfg, logger)
	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		Source: feed.NewHistorySource(feed.HistoryConfig{
			BaseURL: cfg.Feed.HistoryURL,
			RPS:     cfg.Feed.HistoryRPS,
			Logger:  logger,
		}),
		Processor: l.Processor,
		Logger:    logger,
	})

	results, err := backfiller.BackfillTokens(ctx, cfg.Feed.Tokens)
	failed := 0
	for _, r := range results {
		failed += r.Errors
		logger.Info("token backfilled",
			zap.String("token", r.TokenAddress),
			zap.Int("fetched", r.Fetched),
			zap.Int("applied", r.Applied),
			zap.Int("duplicates", r.Duplicates),
			zap.Int("invalid", r.Invalid),
			zap.Int("foreign", r.Foreign),
			zap.Int("errors", r.Errors),
			zap.Duration("duration", r.Duration),
		)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return failed, err
	}
	return failed, nil
}
