package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// SummarySource produces per-token analytics. *analytics.Aggregator satisfies it.
type SummarySource interface {
	Summary(ctx context.Context, address string, price float64) (*domain.AnalyticsSummary, error)
}

// Generator produces reports from the ledger.
type Generator struct {
	source SummarySource
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source SummarySource) *Generator {
	return &Generator{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report for tokens. A positive price overrides every
// token's last trade price. Unknown tokens are listed in Report.Missing.
func (g *Generator) Generate(ctx context.Context, tokens []string, price float64) (*Report, error) {
	seen := make(map[string]struct{}, len(tokens))
	r := &Report{GeneratedAt: g.now()}

	for _, addr := range tokens {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		s, err := g.source.Summary(ctx, addr, price)
		if errors.Is(err, storage.ErrNotFound) {
			r.Missing = append(r.Missing, addr)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", addr, err)
		}
		r.Summaries = append(r.Summaries, s)
	}

	sort.Slice(r.Summaries, func(i, j int) bool {
		return r.Summaries[i].TokenAddress < r.Summaries[j].TokenAddress
	})
	sort.Strings(r.Missing)
	return r, nil
}
