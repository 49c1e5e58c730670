package domain

import "github.com/shopspring/decimal"

// TransactionType is the kind of balance-changing event.
type TransactionType string

// Transaction type constants.
const (
	TransactionTypeBuy      TransactionType = "buy"
	TransactionTypeSell     TransactionType = "sell"
	TransactionTypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeBuy, TransactionTypeSell, TransactionTypeTransfer:
		return true
	}
	return false
}

// TransactionEvent is a committed, immutable transaction.
// Corresponds to transactions table in PostgreSQL. Signature is the idempotency key.
type TransactionEvent struct {
	ID                    int64
	Signature             string
	TokenID               int64
	HolderID              int64
	Type                  TransactionType
	Amount                decimal.Decimal // signed for transfers, positive otherwise
	PricePerToken         float64
	TotalValue            float64
	BlockTime             int64 // unix seconds
	Slot                  int64
	BlockHash             *string
	InstructionIndex      *int
	InnerInstructionIndex *int
	CreatedAt             int64 // record creation timestamp (ms)
}
