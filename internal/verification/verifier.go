// Package verification rebuilds holder positions from their committed
// transactions and compares them with the stored aggregates.
package verification

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single holder.
type VerificationResult struct {
	WalletAddress string
	HolderID      int64
	Transactions  int               // transactions replayed
	Match         bool              // true if all fields match
	Divergences   []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for one token.
type VerificationReport struct {
	TokenAddress     string
	TotalHolders     int
	MatchedHolders   int
	DivergentHolders int
	Results          []VerificationResult
}

// Verifier checks stored positions against a replay of their transactions.
type Verifier interface {
	// VerifyHolder replays one holder's transactions in commit order.
	VerifyHolder(ctx context.Context, tokenAddress, wallet string) (*VerificationResult, error)

	// VerifyToken verifies every holder of a token.
	VerifyToken(ctx context.Context, tokenAddress string) (*VerificationReport, error)
}

// Position is a holder's aggregates together with its open lot totals.
type Position struct {
	Holder *domain.Holder
	Lots   ledger.Totals
}

// ComparePositions compares two positions and returns divergences.
// Amounts compare exactly; prices and PnL use FloatTolerance.
func ComparePositions(stored, replayed Position) []FieldDivergence {
	var divergences []FieldDivergence
	s, r := stored.Holder, replayed.Holder

	decimalField := func(name string, a, b decimal.Decimal) {
		if !a.Equal(b) {
			divergences = append(divergences, FieldDivergence{Field: name, Expected: a.String(), Actual: b.String()})
		}
	}
	floatField := func(name string, a, b float64) {
		if !floatEquals(a, b) {
			divergences = append(divergences, FieldDivergence{Field: name, Expected: a, Actual: b})
		}
	}

	decimalField("Balance", s.Balance, r.Balance)
	decimalField("TotalBought", s.TotalBought, r.TotalBought)
	decimalField("TotalSold", s.TotalSold, r.TotalSold)
	floatField("AvgBuyPrice", s.AvgBuyPrice, r.AvgBuyPrice)
	floatField("RealizedPnL", s.RealizedPnL, r.RealizedPnL)

	if !int64PtrEquals(s.FirstBuyTimestamp, r.FirstBuyTimestamp) {
		divergences = append(divergences, FieldDivergence{
			Field:    "FirstBuyTimestamp",
			Expected: s.FirstBuyTimestamp,
			Actual:   r.FirstBuyTimestamp,
		})
	}

	if s.TransactionCount != r.TransactionCount {
		divergences = append(divergences, FieldDivergence{
			Field:    "TransactionCount",
			Expected: s.TransactionCount,
			Actual:   r.TransactionCount,
		})
	}

	if s.IsActive != r.IsActive {
		divergences = append(divergences, FieldDivergence{
			Field:    "IsActive",
			Expected: s.IsActive,
			Actual:   r.IsActive,
		})
	}

	decimalField("OpenLotAmount", stored.Lots.OpenAmount, replayed.Lots.OpenAmount)
	decimalField("OpenLotCostBasis", stored.Lots.CostBasis, replayed.Lots.CostBasis)

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

func int64PtrEquals(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
