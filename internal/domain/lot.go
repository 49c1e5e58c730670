package domain

import "github.com/shopspring/decimal"

// CostBasisLot is one purchase, the unit of FIFO consumption.
// Corresponds to cost_basis_lots table in PostgreSQL.
//
// Invariant: 0 <= RemainingAmount <= OriginalAmount.
type CostBasisLot struct {
	ID                  int64 // insertion order, FIFO tie-break
	HolderID            int64
	SourceTransactionID int64
	OriginalAmount      decimal.Decimal
	RemainingAmount     decimal.Decimal
	PricePerToken       float64
	PurchaseTimestamp   int64 // unix seconds
	CreatedAt           int64 // record creation timestamp (ms)
}

// Open reports whether the lot still has unconsumed quantity.
func (l *CostBasisLot) Open() bool {
	return l.RemainingAmount.IsPositive()
}

// LotBefore reports whether a is consumed before b:
// (PurchaseTimestamp ASC, ID ASC).
func LotBefore(a, b *CostBasisLot) bool {
	if a.PurchaseTimestamp != b.PurchaseTimestamp {
		return a.PurchaseTimestamp < b.PurchaseTimestamp
	}
	return a.ID < b.ID
}
