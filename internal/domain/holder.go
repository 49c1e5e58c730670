package domain

import "github.com/shopspring/decimal"

// Holder is the per-(token, wallet) position.
// Corresponds to holders table in PostgreSQL.
//
// Invariants: IsActive == Balance > 0; FirstBuyTimestamp is set once.
type Holder struct {
	ID                int64
	TokenID           int64
	WalletAddress     string
	Balance           decimal.Decimal
	TotalBought       decimal.Decimal
	TotalSold         decimal.Decimal
	AvgBuyPrice       float64 // open-lot weighted average cost basis
	RealizedPnL       float64
	FirstBuyTimestamp *int64 // unix seconds of the first buy (nullable)
	LastActivity      int64  // unix seconds of the last applied transaction
	TransactionCount  int64
	IsActive          bool
	ProgramOwned      bool // wallet address is off the ed25519 curve (PDA)
	CreatedAt         int64
	UpdatedAt         int64
}

// NewHolder returns a zero-valued holder for (tokenID, wallet).
func NewHolder(tokenID int64, wallet string) *Holder {
	return &Holder{
		TokenID:       tokenID,
		WalletAddress: wallet,
		Balance:       decimal.Zero,
		TotalBought:   decimal.Zero,
		TotalSold:     decimal.Zero,
	}
}

// RefreshActive recomputes IsActive from Balance.
func (h *Holder) RefreshActive() {
	h.IsActive = h.Balance.IsPositive()
}
