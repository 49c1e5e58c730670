package reporting

import (
	"time"

	"solana-holder-ledger/internal/domain"
)

// Report is the holder analytics report for a set of tokens.
type Report struct {
	GeneratedAt time.Time

	// Summaries sorted by token address.
	Summaries []*domain.AnalyticsSummary

	// Missing lists requested tokens the ledger has never seen.
	Missing []string
}

// TotalHolders returns the number of holders across all summaries.
func (r *Report) TotalHolders() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.HolderCount
	}
	return n
}
