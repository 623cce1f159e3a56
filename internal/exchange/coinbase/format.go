package coinbase

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// formatQuoteSize renders a USD notional with cents precision, rounded down.
func formatQuoteSize(usd float64) string {
	return decimal.NewFromFloat(usd).RoundDown(2).StringFixed(2)
}

// formatBaseSize renders a base asset amount truncated to 8 decimals.
func formatBaseSize(qty float64) string {
	return decimal.NewFromFloat(qty).Truncate(8).String()
}

func parseFloatOrZero(value string) float64 {
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}
