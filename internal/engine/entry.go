package engine

import (
	"dcatrader/internal/config"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"
	"fmt"
	"math"
)

// EvaluateEntry opens a trade on a strong long signal with no short pressure. The size is a
// fixed share of the account, never below the venue minimum.
func EvaluateEntry(sym string, levels signal.Levels, totalValue, buyingPower float64, s config.Settings) Decision {
	d := Decision{Symbol: sym, Levels: levels}

	if levels.Long < s.TradeStartLevel || levels.Short != 0 {
		d.Action = status.ActionSkip
		d.Kind = KindNoSignal
		d.Reason = fmt.Sprintf("Need L>=%d S=0", s.TradeStartLevel)
		return d
	}

	d.Amount = math.Max(totalValue*s.StartAllocationPct/100, MinOrderUSD)
	if d.Amount > buyingPower {
		d.Action = status.ActionSkip
		d.Kind = KindFunds
		d.Reason = fmt.Sprintf("Insufficient funds (need $%.2f, have $%.2f)", d.Amount, buyingPower)
		return d
	}

	d.Action = status.ActionEntry
	d.Kind = KindEntry
	d.Reason = fmt.Sprintf("L%d S%d -> $%.2f", levels.Long, levels.Short, d.Amount)
	return d
}
