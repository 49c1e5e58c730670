package api

import (
	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	QueueState string `json:"queue_state,omitempty"`
	QueueDepth int    `json:"queue_depth"`
}

type lotResponse struct {
	LotID             int64           `json:"lot_id"`
	PurchaseTimestamp int64           `json:"purchase_timestamp"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	PricePerToken     float64         `json:"price_per_token"`
	CostBasis         float64         `json:"cost_basis"`
	Share             float64         `json:"share"`
	UnrealizedPnL     float64         `json:"unrealized_pnl"`
}

type costBasisResponse struct {
	TokenAddress    string          `json:"token_address"`
	WalletAddress   string          `json:"wallet_address"`
	CurrentPrice    float64         `json:"current_price"`
	TotalRemaining  decimal.Decimal `json:"total_remaining"`
	TotalCostBasis  float64         `json:"total_cost_basis"`
	WeightedAverage float64         `json:"weighted_average_cost_basis"`
	UnrealizedPnL   float64         `json:"unrealized_pnl"`
	RealizedPnL     float64         `json:"realized_pnl"`
	Lots            []lotResponse   `json:"lots"`
}

func newCostBasisResponse(b *domain.CostBasisBreakdown) costBasisResponse {
	out := costBasisResponse{
		TokenAddress:    b.TokenAddress,
		WalletAddress:   b.WalletAddress,
		CurrentPrice:    b.CurrentPrice,
		TotalRemaining:  b.TotalRemaining,
		TotalCostBasis:  b.TotalCostBasis,
		WeightedAverage: b.WeightedAverage,
		UnrealizedPnL:   b.UnrealizedPnL,
		RealizedPnL:     b.RealizedPnL,
		Lots:            make([]lotResponse, 0, len(b.Lots)),
	}
	for _, l := range b.Lots {
		out.Lots = append(out.Lots, lotResponse{
			LotID:             l.LotID,
			PurchaseTimestamp: l.PurchaseTimestamp,
			RemainingAmount:   l.RemainingAmount,
			OriginalAmount:    l.OriginalAmount,
			PricePerToken:     l.PricePerToken,
			CostBasis:         l.CostBasis,
			Share:             l.Share,
			UnrealizedPnL:     l.UnrealizedPnL,
		})
	}
	return out
}

type zoneBucketResponse struct {
	HolderCount int             `json:"holder_count"`
	Balance     decimal.Decimal `json:"balance"`
	ValueUSD    float64         `json:"value_usd"`
}

type zonesResponse struct {
	TokenAddress string             `json:"token_address"`
	CurrentPrice float64            `json:"current_price"`
	Tolerance    float64            `json:"tolerance"`
	Profit       zoneBucketResponse `json:"profit"`
	Loss         zoneBucketResponse `json:"loss"`
	BreakEven    zoneBucketResponse `json:"break_even"`
}

func newZoneBucket(b domain.ZoneBucket) zoneBucketResponse {
	return zoneBucketResponse{HolderCount: b.HolderCount, Balance: b.Balance, ValueUSD: b.ValueUSD}
}

func newZonesResponse(z *domain.ProfitLossZones) zonesResponse {
	return zonesResponse{
		TokenAddress: z.TokenAddress,
		CurrentPrice: z.CurrentPrice,
		Tolerance:    z.Tolerance,
		Profit:       newZoneBucket(z.Profit),
		Loss:         newZoneBucket(z.Loss),
		BreakEven:    newZoneBucket(z.BreakEven),
	}
}

type priceLevelResponse struct {
	Price       float64         `json:"price"`
	MinPrice    float64         `json:"min_price"`
	MaxPrice    float64         `json:"max_price"`
	Amount      decimal.Decimal `json:"amount"`
	HolderCount int             `json:"holder_count"`
}

func newPriceLevels(levels []domain.PriceLevel) []priceLevelResponse {
	out := make([]priceLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, priceLevelResponse{
			Price:       l.Price,
			MinPrice:    l.MinPrice,
			MaxPrice:    l.MaxPrice,
			Amount:      l.Amount,
			HolderCount: l.HolderCount,
		})
	}
	return out
}

type summaryResponse struct {
	TokenAddress       string               `json:"token_address"`
	TokenStatus        string               `json:"token_status"`
	CurrentPrice       float64              `json:"current_price"`
	HolderCount        int                  `json:"holder_count"`
	ActiveHolderCount  int                  `json:"active_holder_count"`
	ProgramOwnedCount  int                  `json:"program_owned_count"`
	Zones              zonesResponse        `json:"zones"`
	PriceLevels        []priceLevelResponse `json:"price_levels"`
	MeanCostBasis      float64              `json:"mean_cost_basis"`
	MedianCostBasis    float64              `json:"median_cost_basis"`
	TotalRealizedPnL   float64              `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64              `json:"total_unrealized_pnl"`
	GeneratedAt        int64                `json:"generated_at"`
}

func newSummaryResponse(s *domain.AnalyticsSummary) summaryResponse {
	return summaryResponse{
		TokenAddress:       s.TokenAddress,
		TokenStatus:        string(s.TokenStatus),
		CurrentPrice:       s.CurrentPrice,
		HolderCount:        s.HolderCount,
		ActiveHolderCount:  s.ActiveHolderCount,
		ProgramOwnedCount:  s.ProgramOwnedCount,
		Zones:              newZonesResponse(&s.Zones),
		PriceLevels:        newPriceLevels(s.PriceLevels),
		MeanCostBasis:      s.MeanCostBasis,
		MedianCostBasis:    s.MedianCostBasis,
		TotalRealizedPnL:   s.TotalRealizedPnL,
		TotalUnrealizedPnL: s.TotalUnrealizedPnL,
		GeneratedAt:        s.GeneratedAt,
	}
}

type snapshotResponse struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Zone        string  `json:"zone"`
	HolderCount int     `json:"holder_count"`
	Balance     float64 `json:"balance"`
	ValueUSD    float64 `json:"value_usd"`
	Price       float64 `json:"price"`
}

func newSnapshots(snaps []*domain.ZoneSnapshot) []snapshotResponse {
	out := make([]snapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotResponse{
			TimestampMs: s.TimestampMs,
			Zone:        string(s.Zone),
			HolderCount: s.HolderCount,
			Balance:     s.Balance,
			ValueUSD:    s.ValueUSD,
			Price:       s.Price,
		})
	}
	return out
}
