// Package ledger keeps per-holder purchase lots and applies sales to them
// first-in first-out.
//
// Asset amounts are exact decimals throughout. Prices arrive as float64 and
// are converted to decimals before any multiplication, so PnL is exact up to
// the float representation of the prices themselves.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
)

// ErrNonPositiveAmount is returned for purchases or sales with amount <= 0.
var ErrNonPositiveAmount = errors.New("amount must be positive")

// LotConsumption is the part of one lot used by a sale.
type LotConsumption struct {
	LotID       int64
	LotPrice    float64
	Used        decimal.Decimal
	Remaining   decimal.Decimal // lot remaining after the sale
	RealizedPnL float64
}

// SaleResult is the outcome of matching a sale against open lots.
type SaleResult struct {
	Requested   decimal.Decimal
	Matched     decimal.Decimal
	Unmatched   decimal.Decimal // oversold portion, contributes no PnL
	RealizedPnL float64
	Consumed    []LotConsumption
}

// Oversold reports whether the sale exceeded the open lots.
func (r *SaleResult) Oversold() bool {
	return r.Unmatched.IsPositive()
}

// Totals aggregates a holder's open lots.
type Totals struct {
	OpenAmount decimal.Decimal
	CostBasis  decimal.Decimal
}

// WeightedAverage is CostBasis / OpenAmount, or zero with no open amount.
func (t Totals) WeightedAverage() decimal.Decimal {
	if !t.OpenAmount.IsPositive() {
		return decimal.Zero
	}
	return t.CostBasis.Div(t.OpenAmount)
}

// Price converts a float price for exact arithmetic.
func Price(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p)
}

// Summarize totals the open lots in lots.
func Summarize(lots []*domain.CostBasisLot) Totals {
	t := Totals{OpenAmount: decimal.Zero, CostBasis: decimal.Zero}
	for _, l := range lots {
		if !l.Open() {
			continue
		}
		t.OpenAmount = t.OpenAmount.Add(l.RemainingAmount)
		t.CostBasis = t.CostBasis.Add(l.RemainingAmount.Mul(Price(l.PricePerToken)))
	}
	return t
}

// MatchSale plans a sale of amount at salePrice against lots, which must be in
// consumption order. lots is not modified.
func MatchSale(lots []*domain.CostBasisLot, amount decimal.Decimal, salePrice float64) SaleResult {
	res := SaleResult{Requested: amount, Matched: decimal.Zero}
	sale := Price(salePrice)
	outstanding := amount
	pnl := decimal.Zero

	for _, l := range lots {
		if !outstanding.IsPositive() {
			break
		}
		if !l.Open() {
			continue
		}
		used := decimal.Min(outstanding, l.RemainingAmount)
		lotPnL := used.Mul(sale.Sub(Price(l.PricePerToken)))

		res.Consumed = append(res.Consumed, LotConsumption{
			LotID:       l.ID,
			LotPrice:    l.PricePerToken,
			Used:        used,
			Remaining:   l.RemainingAmount.Sub(used),
			RealizedPnL: lotPnL.InexactFloat64(),
		})
		pnl = pnl.Add(lotPnL)
		res.Matched = res.Matched.Add(used)
		outstanding = outstanding.Sub(used)
	}

	res.Unmatched = outstanding
	res.RealizedPnL = pnl.InexactFloat64()
	return res
}

// Unrealized values open lots at currentPrice. No open amount yields a zero result.
func Unrealized(t Totals, currentPrice float64) domain.UnrealizedPnL {
	if !t.OpenAmount.IsPositive() {
		return domain.UnrealizedPnL{OpenAmount: decimal.Zero}
	}
	value := t.OpenAmount.Mul(Price(currentPrice))
	pnl := value.Sub(t.CostBasis)

	out := domain.UnrealizedPnL{
		OpenAmount:     t.OpenAmount,
		CurrentValue:   value.InexactFloat64(),
		TotalCostBasis: t.CostBasis.InexactFloat64(),
		PnL:            pnl.InexactFloat64(),
	}
	if t.CostBasis.IsPositive() {
		out.PnLPercent = pnl.Div(t.CostBasis).InexactFloat64()
	}
	return out
}
