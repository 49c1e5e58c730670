package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
	"solana-holder-ledger/internal/storage"
)

// Options configures an Engine.
type Options struct {
	Logger *zap.Logger
}

// Engine is the FIFO cost-basis ledger over an injected store.
// Use Bind to run operations inside a caller's unit of work.
type Engine struct {
	store  storage.Store
	logger *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(store storage.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger.Named("ledger")}
}

// Ledger is an Engine bound to one set of repositories.
type Ledger struct {
	lots   storage.LotStore
	logger *zap.Logger
}

// Bind returns a Ledger that reads and writes through repos.
func (e *Engine) Bind(repos storage.Repositories) *Ledger {
	return &Ledger{lots: repos.Lots(), logger: e.logger}
}

// AddPurchase appends a lot with remaining = original = amount.
func (l *Ledger) AddPurchase(ctx context.Context, holderID, sourceTxID int64, amount decimal.Decimal, price float64, timestamp int64) (*domain.CostBasisLot, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	lot := &domain.CostBasisLot{
		HolderID:            holderID,
		SourceTransactionID: sourceTxID,
		OriginalAmount:      amount,
		RemainingAmount:     amount,
		PricePerToken:       price,
		PurchaseTimestamp:   timestamp,
	}
	if err := l.lots.Insert(ctx, lot); err != nil {
		return nil, fmt.Errorf("insert lot: %w", err)
	}
	observability.RecordLotCreated()
	return lot, nil
}

// ConsumeSale walks open lots oldest first and decrements them by amount.
// Selling more than the open lots is not an error: the shortfall is logged
// and reported in SaleResult.Unmatched with no PnL.
func (l *Ledger) ConsumeSale(ctx context.Context, holderID int64, amount decimal.Decimal, salePrice float64) (*SaleResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	lots, err := l.lots.ListOpen(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}

	res := MatchSale(lots, amount, salePrice)
	for _, c := range res.Consumed {
		if err := l.lots.UpdateRemaining(ctx, c.LotID, c.Remaining); err != nil {
			return nil, fmt.Errorf("update lot %d: %w", c.LotID, err)
		}
	}

	if res.Oversold() {
		observability.RecordOversell()
		l.logger.Warn("sale exceeds open lots",
			zap.Int64("holder_id", holderID),
			zap.String("requested", res.Requested.String()),
			zap.String("matched", res.Matched.String()),
			zap.String("unmatched", res.Unmatched.String()),
		)
	}
	observability.RecordRealizedPnL(res.RealizedPnL)
	return &res, nil
}

// Totals sums the holder's open lots.
func (l *Ledger) Totals(ctx context.Context, holderID int64) (Totals, error) {
	lots, err := l.lots.ListOpen(ctx, holderID)
	if err != nil {
		return Totals{}, fmt.Errorf("list open lots: %w", err)
	}
	return Summarize(lots), nil
}

// Cleanup deletes exhausted lots of one holder, or of every holder when holderID is nil.
func (l *Ledger) Cleanup(ctx context.Context, holderID *int64) (int64, error) {
	n, err := l.lots.DeleteExhausted(ctx, holderID)
	if err != nil {
		return 0, fmt.Errorf("delete exhausted lots: %w", err)
	}
	if n > 0 {
		observability.RecordLotsCleanedUp(n)
	}
	return n, nil
}

// AddPurchase records a purchase in its own unit of work.
// sourceTxID must reference a committed transaction.
func (e *Engine) AddPurchase(ctx context.Context, holderID, sourceTxID int64, amount decimal.Decimal, price float64, timestamp int64) (*domain.CostBasisLot, error) {
	var lot *domain.CostBasisLot
	err := e.store.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		if err := tx.Holders().Lock(ctx, holderID); err != nil {
			return fmt.Errorf("lock holder: %w", err)
		}
		var err error
		lot, err = e.Bind(tx).AddPurchase(ctx, holderID, sourceTxID, amount, price, timestamp)
		return err
	})
	return lot, err
}

// ConsumeSale applies a sale in its own unit of work, holding the holder's row lock.
func (e *Engine) ConsumeSale(ctx context.Context, holderID int64, amount decimal.Decimal, salePrice float64) (*SaleResult, error) {
	var res *SaleResult
	err := e.store.WithTx(ctx, func(ctx context.Context, tx storage.Repositories) error {
		if err := tx.Holders().Lock(ctx, holderID); err != nil {
			return fmt.Errorf("lock holder: %w", err)
		}
		var err error
		res, err = e.Bind(tx).ConsumeSale(ctx, holderID, amount, salePrice)
		return err
	})
	return res, err
}

// TotalCostBasis is the sum of remaining * price over open lots.
func (e *Engine) TotalCostBasis(ctx context.Context, holderID int64) (float64, error) {
	t, err := e.Bind(e.store).Totals(ctx, holderID)
	if err != nil {
		return 0, err
	}
	return t.CostBasis.InexactFloat64(), nil
}

// WeightedAverageCostBasis is TotalCostBasis over the open amount, 0 with no open lots.
func (e *Engine) WeightedAverageCostBasis(ctx context.Context, holderID int64) (float64, error) {
	t, err := e.Bind(e.store).Totals(ctx, holderID)
	if err != nil {
		return 0, err
	}
	return t.WeightedAverage().InexactFloat64(), nil
}

// UnrealizedPnL values the holder's open lots at currentPrice.
func (e *Engine) UnrealizedPnL(ctx context.Context, holderID int64, currentPrice float64) (domain.UnrealizedPnL, error) {
	t, err := e.Bind(e.store).Totals(ctx, holderID)
	if err != nil {
		return domain.UnrealizedPnL{}, err
	}
	return Unrealized(t, currentPrice), nil
}

// Cleanup deletes exhausted lots outside any caller unit of work.
func (e *Engine) Cleanup(ctx context.Context, holderID *int64) (int64, error) {
	return e.Bind(e.store).Cleanup(ctx, holderID)
}

// Breakdown lists a holder's open lots with per-lot cost and unrealized PnL.
func (e *Engine) Breakdown(ctx context.Context, holder *domain.Holder, tokenAddress string, currentPrice float64) (*domain.CostBasisBreakdown, error) {
	lots, err := e.store.Lots().ListOpen(ctx, holder.ID)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	totals := Summarize(lots)
	current := Price(currentPrice)

	out := &domain.CostBasisBreakdown{
		HolderID:        holder.ID,
		WalletAddress:   holder.WalletAddress,
		TokenAddress:    tokenAddress,
		CurrentPrice:    currentPrice,
		Lots:            make([]domain.LotView, 0, len(lots)),
		TotalRemaining:  totals.OpenAmount,
		TotalCostBasis:  totals.CostBasis.InexactFloat64(),
		WeightedAverage: totals.WeightedAverage().InexactFloat64(),
		UnrealizedPnL:   Unrealized(totals, currentPrice).PnL,
		RealizedPnL:     holder.RealizedPnL,
	}
	for _, l := range lots {
		price := Price(l.PricePerToken)
		view := domain.LotView{
			LotID:             l.ID,
			PurchaseTimestamp: l.PurchaseTimestamp,
			RemainingAmount:   l.RemainingAmount,
			OriginalAmount:    l.OriginalAmount,
			PricePerToken:     l.PricePerToken,
			CostBasis:         l.RemainingAmount.Mul(price).InexactFloat64(),
			UnrealizedPnL:     l.RemainingAmount.Mul(current.Sub(price)).InexactFloat64(),
		}
		if totals.OpenAmount.IsPositive() {
			view.Share = l.RemainingAmount.Div(totals.OpenAmount).InexactFloat64()
		}
		out.Lots = append(out.Lots, view)
	}
	return out, nil
}
