// Command report prints the holder analytics of tokens as Markdown or CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/app"
	"solana-holder-ledger/internal/config"
	"solana-holder-ledger/internal/logging"
	"solana-holder-ledger/internal/reporting"
	"solana-holder-ledger/internal/verification"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed, color.Bold)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		failure.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	postgresDSN := flag.String("postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	tokens := flag.String("token", os.Getenv("FEED_TOKENS"), "Comma-separated token addresses")
	price := flag.Float64("price", 0, "Current price override (0 uses each token's last trade price)")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	output := flag.String("output", "", "Write the report to this file instead of stdout")
	noColor := flag.Bool("no-color", false, "Disable colored status output")
	verify := flag.Bool("verify", false, "Replay every holder's transactions and report divergences")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.ClickHouseDSN = ""
	cfg.Storage.RedisURL = ""
	cfg.Feed.Tokens = config.SplitList(*tokens)

	logCfg := cfg.Logging()
	logCfg.Level = "warn"
	logCfg.Dir = ""
	logCfg.Stderr = true
	logger, err := logging.New(logCfg)
	if err != nil {
		failure.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(cfg.Feed.Tokens) == 0 {
		failure.Fprintln(os.Stderr, "Error: --token is required")
		os.Exit(1)
	}
	if *format != "markdown" && *format != "csv" {
		failure.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		failure.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, divergent, err := generate(context.Background(), cfg, *price, *verify, logger)
	if err != nil {
		failure.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	var out string
	if *format == "csv" {
		out = reporting.RenderCSV(report)
	} else {
		out = reporting.RenderMarkdown(report)
	}

	if *output == "" {
		fmt.Print(out)
	} else {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			failure.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*output, []byte(out), 0o644); err != nil {
			failure.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
		success.Fprintf(os.Stderr, "Report written to %s\n", *output)
	}

	for _, addr := range report.Missing {
		warning.Fprintf(os.Stderr, "Unknown token: %s\n", addr)
	}
	if divergent > 0 {
		os.Exit(3)
	}
}

func generate(ctx context.Context, cfg *config.Config, price float64, verify bool, logger *zap.Logger) (*reporting.Report, int, error) {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, 0, err
	}
	defer stores.Close()

	l := app.NewLedger(stores, cfg, logger)
	report, err := reporting.NewGenerator(l.Aggregator).Generate(ctx, cfg.Feed.Tokens, price)
	if err != nil {
		return nil, 0, err
	}
	if !verify {
		return report, 0, nil
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		Repos:  stores.Ledger,
		Logger: logger,
	})
	divergent := 0
	for _, s := range report.Summaries {
		vr, err := verifier.VerifyToken(ctx, s.TokenAddress)
		if err != nil {
			return nil, 0, fmt.Errorf("verify %s: %w", s.TokenAddress, err)
		}
		divergent += vr.DivergentHolders
		printVerification(vr)
	}
	return report, divergent, nil
}

func printVerification(vr *verification.VerificationReport) {
	if vr.DivergentHolders == 0 {
		success.Fprintf(os.Stderr, "%s: %d/%d holders match replay\n", vr.TokenAddress, vr.MatchedHolders, vr.TotalHolders)
		return
	}
	failure.Fprintf(os.Stderr, "%s: %d of %d holders diverge from replay\n", vr.TokenAddress, vr.DivergentHolders, vr.TotalHolders)
	for _, r := range vr.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			warning.Fprintf(os.Stderr, "  %s %s: stored=%v replayed=%v\n", r.WalletAddress, d.Field, d.Expected, d.Actual)
		}
	}
}
