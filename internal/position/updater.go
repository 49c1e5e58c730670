// Package position applies a committed transaction's net effect to a holder.
package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
	"solana-holder-ledger/internal/storage"
)

// Options configures an Updater.
type Options struct {
	Logger *zap.Logger
}

// Updater keeps holder aggregates in step with the FIFO ledger.
//
// AvgBuyPrice is the open-lot weighted average cost basis. It is recomputed
// after every buy and sell, is 0 when no lots are open, and is left alone
// by transfers.
type Updater struct {
	engine *ledger.Engine
	logger *zap.Logger
}

// NewUpdater creates an Updater.
func NewUpdater(engine *ledger.Engine, opts Options) *Updater {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{engine: engine, logger: logger.Named("position")}
}

// Result describes what Apply changed.
type Result struct {
	Holder *domain.Holder
	Lot    *domain.CostBasisLot // set for buys
	Sale   *ledger.SaleResult   // set for sells
}

// Apply mutates holder and its lots for tx through repos and persists the holder.
// tx must already be inserted so lots can reference it. The caller owns the
// unit of work and the holder's lock.
func (u *Updater) Apply(ctx context.Context, repos storage.Repositories, holder *domain.Holder, tx *domain.TransactionEvent) (*Result, error) {
	book := u.engine.Bind(repos)
	res := &Result{Holder: holder}

	switch tx.Type {
	case domain.TransactionTypeBuy:
		holder.Balance = holder.Balance.Add(tx.Amount)
		holder.TotalBought = holder.TotalBought.Add(tx.Amount)
		if holder.FirstBuyTimestamp == nil {
			ts := tx.BlockTime
			holder.FirstBuyTimestamp = &ts
		}
		lot, err := book.AddPurchase(ctx, holder.ID, tx.ID, tx.Amount, tx.PricePerToken, tx.BlockTime)
		if err != nil {
			return nil, fmt.Errorf("add purchase: %w", err)
		}
		res.Lot = lot
		if err := u.refreshAverage(ctx, book, holder); err != nil {
			return nil, err
		}

	case domain.TransactionTypeSell:
		holder.Balance = holder.Balance.Sub(tx.Amount)
		holder.TotalSold = holder.TotalSold.Add(tx.Amount)
		sale, err := book.ConsumeSale(ctx, holder.ID, tx.Amount, tx.PricePerToken)
		if err != nil {
			return nil, fmt.Errorf("consume sale: %w", err)
		}
		res.Sale = sale
		holder.RealizedPnL = decimal.NewFromFloat(holder.RealizedPnL).
			Add(decimal.NewFromFloat(sale.RealizedPnL)).
			InexactFloat64()
		if _, err := book.Cleanup(ctx, &holder.ID); err != nil {
			return nil, fmt.Errorf("cleanup lots: %w", err)
		}
		if err := u.refreshAverage(ctx, book, holder); err != nil {
			return nil, err
		}

	case domain.TransactionTypeTransfer:
		holder.Balance = holder.Balance.Add(tx.Amount)

	default:
		return nil, fmt.Errorf("apply %q: %w", tx.Type, storage.ErrInvalidInput)
	}

	if holder.Balance.IsNegative() {
		u.logger.Warn("holder balance negative",
			zap.Int64("holder_id", holder.ID),
			zap.String("wallet", holder.WalletAddress),
			zap.String("balance", holder.Balance.String()),
			zap.String("signature", tx.Signature),
		)
	}

	if tx.BlockTime > holder.LastActivity {
		holder.LastActivity = tx.BlockTime
	}
	holder.TransactionCount++
	holder.RefreshActive()

	if err := repos.Holders().Update(ctx, holder); err != nil {
		return nil, fmt.Errorf("update holder: %w", err)
	}
	return res, nil
}

func (u *Updater) refreshAverage(ctx context.Context, book *ledger.Ledger, holder *domain.Holder) error {
	totals, err := book.Totals(ctx, holder.ID)
	if err != nil {
		return fmt.Errorf("compute cost basis: %w", err)
	}
	holder.AvgBuyPrice = totals.WeightedAverage().InexactFloat64()
	return nil
}
