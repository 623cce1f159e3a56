package engine

import (
	"dcatrader/internal/config"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"
	"fmt"
)

// Decision is the outcome of one evaluation, carried into the signal log.
type Decision struct {
	Symbol string
	Action status.Action
	Kind   string
	Reason string
	Amount float64
	Stage  int
	Levels signal.Levels
}

const (
	KindHold     = "hold"
	KindHard     = "hard"
	KindSignal   = "signal"
	KindFunds    = "funds"
	KindEntry    = "entry"
	KindNoSignal = "no_signal"
	KindTrail    = "trail"
)

type DCAInput struct {
	Symbol      string
	Stage       int
	CostBasis   float64
	Qty         float64
	Bid         float64
	Ask         float64
	BuyingPower float64
	Levels      signal.Levels
	Gate        GateResult
}

// SignalNeeded is the long level the signal must reach to fire at stage.
func SignalNeeded(stage int, s config.Settings) int {
	return s.TradeStartLevel + 1 + stage
}

// EvaluateDCA decides whether the position should average down at its current stage.
// The hard threshold and the signal condition are alternatives; either one fires a buy,
// subject to the rate gate and then to available funds.
func EvaluateDCA(in DCAInput, s config.Settings) Decision {
	d := Decision{Symbol: in.Symbol, Stage: in.Stage, Levels: in.Levels}

	pnl := PnLPct(in.Ask, in.CostBasis)
	hard := s.HardLevel(in.Stage)
	hardHit := pnl <= hard

	signalHit := false
	needed := SignalNeeded(in.Stage, s)
	if in.Stage < s.SignalStages() {
		signalHit = in.Levels.Long >= needed && pnl < 0
	}

	if !hardHit && !signalHit {
		d.Action = status.ActionHold
		d.Kind = KindHold
		d.Reason = fmt.Sprintf("PnL %+.2f%% > DCA %.2f%%", pnl, hard)
		return d
	}

	if !in.Gate.Allowed {
		d.Action = status.ActionDCASkip
		d.Kind = string(in.Gate.Reason)
		d.Reason = in.Gate.Message()
		return d
	}

	d.Amount = s.DCAMultiplier * in.Qty * in.Bid
	if d.Amount > in.BuyingPower {
		d.Action = status.ActionDCASkip
		d.Kind = KindFunds
		d.Reason = fmt.Sprintf("Insufficient funds (need $%.2f, have $%.2f)", d.Amount, in.BuyingPower)
		return d
	}

	d.Action = status.ActionDCA
	switch {
	case hardHit && signalHit:
		d.Kind = KindHard
		d.Reason = fmt.Sprintf("NEURAL L%d>=L%d OR HARD %.2f%%", in.Levels.Long, needed, hard)
	case hardHit:
		d.Kind = KindHard
		d.Reason = fmt.Sprintf("HARD %.2f%%", hard)
	default:
		d.Kind = KindSignal
		d.Reason = fmt.Sprintf("NEURAL L%d>=L%d", in.Levels.Long, needed)
	}
	return d
}
