package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-holder-ledger/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Holder Cost Basis Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Tokens: %d | Holders: %d\n\n", len(r.Summaries), r.TotalHolders()))

	if len(r.Missing) > 0 {
		sb.WriteString("## Unknown Tokens\n\n")
		for _, addr := range r.Missing {
			sb.WriteString(fmt.Sprintf("- %s\n", addr))
		}
		sb.WriteString("\n")
	}

	for _, s := range r.Summaries {
		renderSummary(&sb, s)
	}

	return sb.String()
}

func renderSummary(sb *strings.Builder, s *domain.AnalyticsSummary) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", s.TokenAddress))

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", s.TokenStatus))
	sb.WriteString(fmt.Sprintf("| Current Price | %s |\n", price(s.CurrentPrice)))
	sb.WriteString(fmt.Sprintf("| Holders | %d |\n", s.HolderCount))
	sb.WriteString(fmt.Sprintf("| Active Holders | %d |\n", s.ActiveHolderCount))
	sb.WriteString(fmt.Sprintf("| Program-Owned Holders | %d |\n", s.ProgramOwnedCount))
	sb.WriteString(fmt.Sprintf("| Mean Cost Basis | %s |\n", price(s.MeanCostBasis)))
	sb.WriteString(fmt.Sprintf("| Median Cost Basis | %s |\n", price(s.MedianCostBasis)))
	sb.WriteString(fmt.Sprintf("| Realized PnL | %s |\n", signedUSD(s.TotalRealizedPnL)))
	sb.WriteString(fmt.Sprintf("| Unrealized PnL | %s |\n", signedUSD(s.TotalUnrealizedPnL)))
	sb.WriteString("\n")

	// Zones
	sb.WriteString(fmt.Sprintf("### Profit/Loss Zones (tolerance %.2f%%)\n\n", s.Zones.Tolerance*100))
	sb.WriteString("| Zone | Holders | Balance | Value |\n")
	sb.WriteString("|------|---------|---------|-------|\n")
	for _, z := range []domain.Zone{domain.ZoneProfit, domain.ZoneBreakEven, domain.ZoneLoss} {
		b := s.Zones.Bucket(z)
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
			z, b.HolderCount, b.Balance.String(), usd(b.ValueUSD)))
	}
	sb.WriteString("\n")

	// Price levels
	sb.WriteString("### Price Levels\n\n")
	if len(s.PriceLevels) == 0 {
		sb.WriteString("No open lots.\n\n")
		return
	}
	sb.WriteString("| Price | Range | Amount | Holders |\n")
	sb.WriteString("|-------|-------|--------|--------|\n")
	for _, l := range s.PriceLevels {
		sb.WriteString(fmt.Sprintf("| %s | %s - %s | %s | %d |\n",
			price(l.Price), price(l.MinPrice), price(l.MaxPrice), l.Amount.String(), l.HolderCount))
	}
	sb.WriteString("\n")
}
