// Package analytics derives cross-holder views of a token from committed
// ledger state: profit/loss zones, price-level clusters and summaries.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/storage"
)

// Defaults for zone and band parameters.
const (
	DefaultTolerance = 0.01
	DefaultBand      = 0.05
	DefaultTopLevels = 10
)

// Options configures an Aggregator.
type Options struct {
	Tolerance float64 // Default: 0.01
	Band      float64 // Default: 0.05
	TopLevels int     // Default: 10, price levels kept in a summary
	Logger    *zap.Logger
	Now       func() time.Time
}

// Aggregator answers analytics queries. It only reads committed state and
// never runs inside ingestion.
type Aggregator struct {
	repos     storage.Repositories
	engine    *ledger.Engine
	tolerance float64
	band      float64
	topLevels int
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregator creates a new Aggregator.
func NewAggregator(repos storage.Repositories, engine *ledger.Engine, opts Options) *Aggregator {
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	band := opts.Band
	if band <= 0 {
		band = DefaultBand
	}
	topLevels := opts.TopLevels
	if topLevels <= 0 {
		topLevels = DefaultTopLevels
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		repos:     repos,
		engine:    engine,
		tolerance: tolerance,
		band:      band,
		topLevels: topLevels,
		logger:    logger.Named("analytics"),
		now:       now,
	}
}

// Tolerance returns the default zone tolerance.
func (a *Aggregator) Tolerance() float64 { return a.tolerance }

// Token resolves a token by address. Returns storage.ErrNotFound if unknown.
func (a *Aggregator) Token(ctx context.Context, address string) (*domain.Token, error) {
	t, err := a.repos.Tokens().GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", address, err)
	}
	return t, nil
}

// CurrentPrice returns override when positive, otherwise the price of the
// token's most recent trade, or 0 if it never traded.
func (a *Aggregator) CurrentPrice(ctx context.Context, token *domain.Token, override float64) (float64, error) {
	if override > 0 {
		return override, nil
	}
	price, err := a.repos.Transactions().LastPrice(ctx, token.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last price: %w", err)
	}
	return price, nil
}

// ProfitLossZones classifies the token's active holders at price.
// Non-positive price and tolerance fall back to the defaults.
func (a *Aggregator) ProfitLossZones(ctx context.Context, address string, price, tolerance float64) (*domain.ProfitLossZones, error) {
	defer a.observe("zones", time.Now())

	token, err := a.Token(ctx, address)
	if err != nil {
		return nil, err
	}
	return a.zones(ctx, token, price, tolerance)
}

func (a *Aggregator) zones(ctx context.Context, token *domain.Token, price, tolerance float64) (*domain.ProfitLossZones, error) {
	if tolerance <= 0 {
		tolerance = a.tolerance
	}
	price, err := a.CurrentPrice(ctx, token, price)
	if err != nil {
		return nil, err
	}
	holders, err := a.repos.Holders().ListActiveByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list active holders: %w", err)
	}
	z := computeZones(token.Address, holders, price, tolerance)
	return &z, nil
}

// PriceLevels clusters the token's open lots. A non-positive band uses the default.
func (a *Aggregator) PriceLevels(ctx context.Context, address string, band float64) ([]domain.PriceLevel, error) {
	defer a.observe("price_levels", time.Now())

	token, err := a.Token(ctx, address)
	if err != nil {
		return nil, err
	}
	lots, err := a.repos.Lots().ListOpenByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	if band <= 0 {
		band = a.band
	}
	return clusterPriceLevels(lots, band), nil
}

// CostBasis returns a holder's lot breakdown valued at price.
func (a *Aggregator) CostBasis(ctx context.Context, address, wallet string, price float64) (*domain.CostBasisBreakdown, error) {
	defer a.observe("cost_basis", time.Now())

	token, err := a.Token(ctx, address)
	if err != nil {
		return nil, err
	}
	holder, err := a.repos.Holders().GetByWallet(ctx, token.ID, wallet)
	if err != nil {
		return nil, fmt.Errorf("get holder %s: %w", wallet, err)
	}
	price, err = a.CurrentPrice(ctx, token, price)
	if err != nil {
		return nil, err
	}
	return a.engine.Breakdown(ctx, holder, token.Address, price)
}

// Summary composes zones, the top price levels and cross-holder statistics.
func (a *Aggregator) Summary(ctx context.Context, address string, price float64) (*domain.AnalyticsSummary, error) {
	defer a.observe("summary", time.Now())

	token, err := a.Token(ctx, address)
	if err != nil {
		return nil, err
	}
	price, err = a.CurrentPrice(ctx, token, price)
	if err != nil {
		return nil, err
	}

	holders, err := a.repos.Holders().ListByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	lots, err := a.repos.Lots().ListOpenByToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}

	out := &domain.AnalyticsSummary{
		TokenAddress: token.Address,
		TokenStatus:  token.Status,
		CurrentPrice: price,
		HolderCount:  len(holders),
		Zones:        computeZones(token.Address, holders, price, a.tolerance),
		GeneratedAt:  a.now().UnixMilli(),
	}

	realized := decimal.Zero
	for _, h := range holders {
		realized = realized.Add(decimal.NewFromFloat(h.RealizedPnL))
		if h.Balance.IsPositive() {
			out.ActiveHolderCount++
			if h.ProgramOwned {
				out.ProgramOwnedCount++
			}
		}
	}
	out.TotalRealizedPnL = realized.InexactFloat64()
	out.MeanCostBasis, out.MedianCostBasis = costBasisStats(holders)

	if price > 0 {
		out.TotalUnrealizedPnL = ledger.Unrealized(ledger.Summarize(lots), price).PnL
	}

	levels := clusterPriceLevels(lots, a.band)
	if len(levels) > a.topLevels {
		levels = levels[:a.topLevels]
	}
	out.PriceLevels = levels
	return out, nil
}

func (a *Aggregator) observe(query string, start time.Time) {
	observability.RecordQuery(query, time.Since(start).Seconds())
}
