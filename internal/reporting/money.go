package reporting

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const currency = money.USD

// usd formats a dollar value in the currency's minor units.
func usd(amount float64) string {
	cur := money.GetCurrency(currency)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), currency).Display()
}

// signedUSD prefixes positive values with "+" and renders zero as "-".
func signedUSD(amount float64) string {
	switch {
	case amount > 0:
		return "+" + usd(amount)
	case amount < 0:
		return usd(amount)
	default:
		return "-"
	}
}

// price formats a per-token price, which is often far below one cent.
func price(p float64) string {
	return fmt.Sprintf("%.8g", p)
}
