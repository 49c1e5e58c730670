package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/ledger"
)

// ClassifyZone places a holder with average cost avgCost against price.
//
// pct = (price - avgCost) / avgCost; pct > tolerance is profit, pct < -tolerance
// is loss, anything else (including avgCost == 0) is break-even. The
// comparison is exact, so a holder exactly at the tolerance is break-even.
func ClassifyZone(avgCost, price, tolerance float64) domain.Zone {
	if avgCost == 0 {
		return domain.ZoneBreakEven
	}
	cost := ledger.Price(avgCost)
	pct := ledger.Price(price).Sub(cost).Div(cost)
	tol := ledger.Price(tolerance)

	switch {
	case pct.GreaterThan(tol):
		return domain.ZoneProfit
	case pct.LessThan(tol.Neg()):
		return domain.ZoneLoss
	default:
		return domain.ZoneBreakEven
	}
}

// computeZones buckets holders by ClassifyZone. Holders with a non-positive
// balance are skipped.
func computeZones(tokenAddress string, holders []*domain.Holder, price, tolerance float64) domain.ProfitLossZones {
	out := domain.ProfitLossZones{
		TokenAddress: tokenAddress,
		CurrentPrice: price,
		Tolerance:    tolerance,
		Profit:       domain.ZoneBucket{Balance: decimal.Zero},
		Loss:         domain.ZoneBucket{Balance: decimal.Zero},
		BreakEven:    domain.ZoneBucket{Balance: decimal.Zero},
	}
	current := ledger.Price(price)
	values := map[domain.Zone]decimal.Decimal{}

	for _, h := range holders {
		if !h.Balance.IsPositive() {
			continue
		}
		zone := ClassifyZone(h.AvgBuyPrice, price, tolerance)
		b := out.Bucket(zone)
		b.HolderCount++
		b.Balance = b.Balance.Add(h.Balance)
		values[zone] = values[zone].Add(h.Balance.Mul(current))
	}
	for zone, v := range values {
		out.Bucket(zone).ValueUSD = v.InexactFloat64()
	}
	return out
}

// clusterPriceLevels groups open lots into price bands.
//
// Distinct lot prices are visited in ascending order. Each price joins the
// first band whose representative price is within band (relative), otherwise
// it opens a new band. Bands carry total remaining amount and the number of
// distinct holders with lots in them, and are returned by amount descending.
func clusterPriceLevels(lots []*domain.CostBasisLot, band float64) []domain.PriceLevel {
	type priceGroup struct {
		amount  decimal.Decimal
		holders map[int64]struct{}
	}
	groups := make(map[float64]*priceGroup)
	for _, l := range lots {
		if !l.Open() {
			continue
		}
		g, ok := groups[l.PricePerToken]
		if !ok {
			g = &priceGroup{amount: decimal.Zero, holders: make(map[int64]struct{})}
			groups[l.PricePerToken] = g
		}
		g.amount = g.amount.Add(l.RemainingAmount)
		g.holders[l.HolderID] = struct{}{}
	}

	prices := make([]float64, 0, len(groups))
	for p := range groups {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	type bucket struct {
		level   domain.PriceLevel
		holders map[int64]struct{}
	}
	var buckets []*bucket
	tol := ledger.Price(band)

	for _, p := range prices {
		g := groups[p]
		var target *bucket
		for _, b := range buckets {
			if withinBand(b.level.Price, p, tol) {
				target = b
				break
			}
		}
		if target == nil {
			target = &bucket{
				level:   domain.PriceLevel{Price: p, MinPrice: p, MaxPrice: p, Amount: decimal.Zero},
				holders: make(map[int64]struct{}),
			}
			buckets = append(buckets, target)
		}
		target.level.Amount = target.level.Amount.Add(g.amount)
		if p < target.level.MinPrice {
			target.level.MinPrice = p
		}
		if p > target.level.MaxPrice {
			target.level.MaxPrice = p
		}
		for id := range g.holders {
			target.holders[id] = struct{}{}
		}
	}

	levels := make([]domain.PriceLevel, len(buckets))
	for i, b := range buckets {
		b.level.HolderCount = len(b.holders)
		levels[i] = b.level
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Amount.GreaterThan(levels[j].Amount)
	})
	return levels
}

// withinBand reports |price - rep| / rep <= band. A zero representative only
// matches zero.
func withinBand(rep, price float64, band decimal.Decimal) bool {
	if rep == 0 {
		return price == 0
	}
	r := ledger.Price(rep)
	diff := ledger.Price(price).Sub(r).Abs().Div(r.Abs())
	return diff.LessThanOrEqual(band)
}

// costBasisStats returns mean and median AvgBuyPrice over active holders
// with a non-zero average.
func costBasisStats(holders []*domain.Holder) (mean, median float64) {
	var values []float64
	for _, h := range holders {
		if h.Balance.IsPositive() && h.AvgBuyPrice != 0 {
			values = append(values, h.AvgBuyPrice)
		}
	}
	if len(values) == 0 {
		return 0, 0
	}
	sort.Float64s(values)
	return computeMean(values), computePercentile(values, 0.50)
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(values)))).InexactFloat64()
}

// computePercentile interpolates linearly between the closest ranks of sorted.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
