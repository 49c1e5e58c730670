package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the price levels of every summary as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("token_address,price,min_price,max_price,amount,holder_count\n")

	// Rows
	for _, s := range r.Summaries {
		for _, l := range s.PriceLevels {
			sb.WriteString(fmt.Sprintf("%s,%.12g,%.12g,%.12g,%s,%d\n",
				s.TokenAddress,
				l.Price,
				l.MinPrice,
				l.MaxPrice,
				l.Amount.String(),
				l.HolderCount,
			))
		}
	}

	return sb.String()
}
