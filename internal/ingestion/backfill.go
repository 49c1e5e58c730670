package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
)

// HistorySource fetches the full trade history of a token in any order.
type HistorySource interface {
	Fetch(ctx context.Context, tokenAddress string) ([]domain.TradeEvent, error)
}

// BackfillOptions configures a Backfiller.
type BackfillOptions struct {
	Source    HistorySource
	Processor Applier
	// Queue, when set, is paused for the token while its history is applied.
	Queue  *Queue
	Logger *zap.Logger
}

// BackfillResult contains statistics from one token backfill.
type BackfillResult struct {
	TokenAddress string
	Fetched      int
	Applied      int
	Duplicates   int
	Invalid      int
	Foreign      int // events for another token, skipped
	Errors       int
	Duration     time.Duration
}

// Backfiller applies a token's historical trades in block time order.
type Backfiller struct {
	source    HistorySource
	processor Applier
	queue     *Queue
	logger    *zap.Logger
}

// NewBackfiller creates a new Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		source:    opts.Source,
		processor: opts.Processor,
		queue:     opts.Queue,
		logger:    logger.Named("backfill"),
	}
}

// BackfillToken fetches the history of token, sorts it by block time and
// applies every event synchronously, one at a time. Live events for the
// token are held until it returns. Per-event failures are counted and do not
// stop the run.
func (b *Backfiller) BackfillToken(ctx context.Context, token string) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{TokenAddress: token}

	if b.queue != nil {
		b.queue.PauseToken(token)
		defer b.queue.ResumeToken(ctx, token)
	}

	events, err := b.source.Fetch(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", token, err)
	}
	result.Fetched = len(events)

	SortByBlockTime(events)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if ev.TokenAddress != token {
			result.Foreign++
			continue
		}

		_, err := b.processor.Process(ctx, ev)
		switch {
		case err == nil:
			result.Applied++
			observability.RecordBackfillTransaction()
		case errors.Is(err, ErrDuplicateTransaction):
			result.Duplicates++
		case errors.Is(err, ErrValidation):
			result.Invalid++
			b.logger.Warn("invalid historical transaction dropped",
				zap.String("signature", ev.Signature),
				zap.String("token", token),
				zap.Error(err),
			)
		default:
			result.Errors++
			b.logger.Error("failed to apply historical transaction",
				zap.String("signature", ev.Signature),
				zap.String("token", token),
				zap.String("wallet", ev.WalletAddress),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}

	result.Duration = time.Since(start)
	b.logger.Info("backfill complete",
		zap.String("token", token),
		zap.Int("fetched", result.Fetched),
		zap.Int("applied", result.Applied),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("invalid", result.Invalid),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// BackfillTokens backfills each token in turn. It stops at the first fetch
// error or when ctx is done and returns the results gathered so far.
func (b *Backfiller) BackfillTokens(ctx context.Context, tokens []string) ([]*BackfillResult, error) {
	results := make([]*BackfillResult, 0, len(tokens))
	for _, token := range tokens {
		res, err := b.BackfillToken(ctx, token)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
