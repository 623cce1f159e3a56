package engine

// MinOrderUSD is the smallest notional the venue accepts for a market buy.
const MinOrderUSD = 1.0

func CalcAvgPrice(totalCost, totalQty float64) float64 {
	if totalQty == 0 {
		return 0
	}
	return totalCost / totalQty
}

// PnLPct is the percent gain of price over cost; 0 without a cost.
func PnLPct(price, cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return (price - cost) / cost * 100
}

// PriceAtPct is the price that sits pct percent away from cost.
func PriceAtPct(cost, pct float64) float64 {
	return cost * (1 + pct/100)
}
