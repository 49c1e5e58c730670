package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

type fakeSource struct {
	summaries map[string]*domain.AnalyticsSummary
	err       error
	prices    []float64
}

func (f *fakeSource) Summary(_ context.Context, address string, price float64) (*domain.AnalyticsSummary, error) {
	f.prices = append(f.prices, price)
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.summaries[address]
	if !ok {
		return nil, fmt.Errorf("get token %s: %w", address, storage.ErrNotFound)
	}
	return s, nil
}

func testSummary(addr string) *domain.AnalyticsSummary {
	return &domain.AnalyticsSummary{
		TokenAddress:      addr,
		TokenStatus:       domain.TokenStatusTracking,
		CurrentPrice:      0.00012345,
		HolderCount:       3,
		ActiveHolderCount: 2,
		Zones: domain.ProfitLossZones{
			TokenAddress: addr,
			CurrentPrice: 0.00012345,
			Tolerance:    0.01,
			Profit:       domain.ZoneBucket{HolderCount: 1, Balance: decimal.NewFromInt(60), ValueUSD: 1234.5},
			Loss:         domain.ZoneBucket{HolderCount: 1, Balance: decimal.NewFromInt(50), ValueUSD: 10},
		},
		PriceLevels: []domain.PriceLevel{
			{Price: 0.0001, MinPrice: 0.0001, MaxPrice: 0.000104, Amount: decimal.NewFromInt(60), HolderCount: 1},
		},
		TotalRealizedPnL:   80,
		TotalUnrealizedPnL: -12.5,
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	src := &fakeSource{summaries: map[string]*domain.AnalyticsSummary{
		"MintB": testSummary("MintB"),
		"MintA": testSummary("MintA"),
	}}
	gen := NewGenerator(src).WithClock(fixedClock)

	r, err := gen.Generate(context.Background(), []string{"MintB", "Unknown", "MintA", "MintB"}, 2.5)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(r.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(r.Summaries))
	}
	if r.Summaries[0].TokenAddress != "MintA" || r.Summaries[1].TokenAddress != "MintB" {
		t.Errorf("summaries not sorted: %s, %s", r.Summaries[0].TokenAddress, r.Summaries[1].TokenAddress)
	}
	if len(r.Missing) != 1 || r.Missing[0] != "Unknown" {
		t.Errorf("expected Unknown to be missing, got %v", r.Missing)
	}
	if len(src.prices) != 3 {
		t.Errorf("expected duplicate token to be queried once, got %d calls", len(src.prices))
	}
	for _, p := range src.prices {
		if p != 2.5 {
			t.Errorf("expected price override 2.5, got %v", p)
		}
	}
	if r.TotalHolders() != 6 {
		t.Errorf("expected 6 holders, got %d", r.TotalHolders())
	}
	if !r.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("unexpected GeneratedAt %v", r.GeneratedAt)
	}
}

func TestGenerator_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	gen := NewGenerator(&fakeSource{err: boom})

	_, err := gen.Generate(context.Background(), []string{"MintA"}, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	r := &Report{
		GeneratedAt: fixedClock(),
		Summaries:   []*domain.AnalyticsSummary{testSummary("MintA")},
		Missing:     []string{"Unknown"},
	}
	md := RenderMarkdown(r)

	for _, want := range []string{
		"# Holder Cost Basis Report",
		"Generated: 2024-01-15T12:00:00Z",
		"Tokens: 1 | Holders: 3",
		"## Unknown Tokens",
		"- Unknown",
		"## MintA",
		"| Current Price | 0.00012345 |",
		"| Realized PnL | +$80.00 |",
		"### Profit/Loss Zones (tolerance 1.00%)",
		"| profit | 1 | 60 | $1,234.50 |",
		"| break_even | 0 | 0 | $0.00 |",
		"| 0.0001 | 0.0001 - 0.000104 | 60 | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if !strings.Contains(md, "12.50") {
		t.Errorf("markdown missing unrealized loss\n%s", md)
	}
}

func TestRenderMarkdown_NoLots(t *testing.T) {
	s := testSummary("MintA")
	s.PriceLevels = nil
	md := RenderMarkdown(&Report{GeneratedAt: fixedClock(), Summaries: []*domain.AnalyticsSummary{s}})

	if !strings.Contains(md, "No open lots.") {
		t.Errorf("expected empty price level notice\n%s", md)
	}
}

func TestRenderCSV(t *testing.T) {
	r := &Report{Summaries: []*domain.AnalyticsSummary{testSummary("MintA")}}
	csv := RenderCSV(r)

	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[1] != "MintA,0.0001,0.0001,0.000104,60,1" {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestSignedUSD(t *testing.T) {
	if got := signedUSD(0); got != "-" {
		t.Errorf("zero: got %q", got)
	}
	if got := signedUSD(1.005); !strings.HasPrefix(got, "+$1.0") {
		t.Errorf("positive: got %q", got)
	}
	if got := usd(1234567.891); got != "$1,234,567.89" {
		t.Errorf("usd: got %q", got)
	}
}
