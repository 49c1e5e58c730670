package domain

import "github.com/shopspring/decimal"

// Zone is a holder-psychology bucket.
type Zone string

// Zone constants.
const (
	ZoneProfit    Zone = "profit"
	ZoneLoss      Zone = "loss"
	ZoneBreakEven Zone = "break_even"
)

// ZoneBucket aggregates the holders that fall into one zone.
type ZoneBucket struct {
	HolderCount int
	Balance     decimal.Decimal // total token balance of the bucket
	ValueUSD    float64         // Balance valued at the current price
}

// ProfitLossZones classifies active holders of a token against a current price.
type ProfitLossZones struct {
	TokenAddress string
	CurrentPrice float64
	Tolerance    float64
	Profit       ZoneBucket
	Loss         ZoneBucket
	BreakEven    ZoneBucket
}

// Bucket returns a pointer to the bucket for z.
func (p *ProfitLossZones) Bucket(z Zone) *ZoneBucket {
	switch z {
	case ZoneProfit:
		return &p.Profit
	case ZoneLoss:
		return &p.Loss
	default:
		return &p.BreakEven
	}
}

// TotalHolders returns the number of classified holders.
func (p *ProfitLossZones) TotalHolders() int {
	return p.Profit.HolderCount + p.Loss.HolderCount + p.BreakEven.HolderCount
}

// PriceLevel is a cluster of open lots around a representative price.
type PriceLevel struct {
	Price       float64         // representative (first) price of the band
	MinPrice    float64         // lowest member price
	MaxPrice    float64         // highest member price
	Amount      decimal.Decimal // total remaining amount in the band
	HolderCount int             // distinct holders with lots in the band
}

// LotView is one open lot as shown in a cost-basis breakdown.
type LotView struct {
	LotID             int64
	PurchaseTimestamp int64
	RemainingAmount   decimal.Decimal
	OriginalAmount    decimal.Decimal
	PricePerToken     float64
	CostBasis         float64
	Share             float64 // fraction of the holder's open amount
	UnrealizedPnL     float64
}

// CostBasisBreakdown details a holder's open lots.
type CostBasisBreakdown struct {
	HolderID        int64
	WalletAddress   string
	TokenAddress    string
	CurrentPrice    float64
	Lots            []LotView
	TotalRemaining  decimal.Decimal
	TotalCostBasis  float64
	WeightedAverage float64
	UnrealizedPnL   float64
	RealizedPnL     float64
}

// UnrealizedPnL values a holder's open lots at a current price.
type UnrealizedPnL struct {
	OpenAmount     decimal.Decimal
	CurrentValue   float64
	TotalCostBasis float64
	PnL            float64
	PnLPercent     float64 // PnL / TotalCostBasis, 0 when cost basis is 0
}

// AnalyticsSummary composes the per-token analytics.
type AnalyticsSummary struct {
	TokenAddress       string
	TokenStatus        TokenStatus
	CurrentPrice       float64
	HolderCount        int
	ActiveHolderCount  int
	ProgramOwnedCount  int
	Zones              ProfitLossZones
	PriceLevels        []PriceLevel
	MeanCostBasis      float64
	MedianCostBasis    float64
	TotalRealizedPnL   float64
	TotalUnrealizedPnL float64
	GeneratedAt        int64 // unix ms
}

// ZoneSnapshot is one persisted zone count at a point in time.
// Corresponds to zone_snapshots table in ClickHouse.
type ZoneSnapshot struct {
	TokenAddress string
	TimestampMs  int64
	Zone         Zone
	HolderCount  int
	Balance      float64
	ValueUSD     float64
	Price        float64
}
