package engine

import (
	"dcatrader/internal/metrics"
	"dcatrader/internal/models"
	"dcatrader/internal/status"
	"fmt"
)

const dcaSourceHard = "HARD"

// publish writes the status file and account history and mirrors the numbers into metrics.
func (e *Engine) publish(acct AccountSnapshot, held map[string]float64, quotes map[string]models.Quote) {
	snap := e.buildStatus(acct, held, quotes)
	if e.statusW != nil {
		if err := e.statusW.Write(snap); err != nil {
			e.logEntry().WithError(err).Error("Не удалось записать статус.")
		}
	}

	realized := 0.0
	if e.ledger != nil {
		realized = e.ledger.TotalRealized()
	}
	metrics.SetAccount(acct.TotalValue, acct.BuyingPower, realized)
	for sym, pos := range e.positions {
		metrics.SetPosition(sym, pos.Stage, pos.Trail != nil && pos.Trail.Active)
	}
}

func (e *Engine) buildStatus(acct AccountSnapshot, held map[string]float64, quotes map[string]models.Quote) status.Snapshot {
	s := e.settings
	snap := status.Snapshot{
		Timestamp: models.UnixFloat(e.now()),
		Account: status.Account{
			TotalAccountValue: acct.TotalValue,
			BuyingPower:       acct.BuyingPower,
			HoldingsSellValue: acct.HoldingsSellValue,
			HoldingsBuyValue:  acct.HoldingsBuyValue,
			PercentInTrade:    acct.PercentInTrade,
			PMStartPctNoDCA:   s.PMStartPctNoDCA,
			PMStartPctWithDCA: s.PMStartPctWithDCA,
			TrailingGapPct:    s.TrailingGapPct,
		},
		Positions: map[string]status.Position{},
	}
	if e.ledger != nil {
		snap.Account.RealizedProfitUSD = e.ledger.TotalRealized()
	}

	for _, sym := range watchList(held, s.Coins) {
		q := quotes[sym]
		pos, ok := e.positions[sym]
		if qty := held[sym]; ok && qty > 0 && pos.CostBasis > 0 {
			snap.Positions[sym] = e.positionStatus(pos, qty, q)
			continue
		}
		// Tracked but not in a trade: prices only.
		p := status.Position{
			CurrentBuyPrice:  q.Ask,
			CurrentSellPrice: q.Bid,
			DCALineSource:    "N/A",
		}
		if ok {
			p.DCATriggeredStages = pos.Stage
		}
		snap.Positions[sym] = p
	}
	return snap
}

func (e *Engine) positionStatus(pos *Position, qty float64, q models.Quote) status.Position {
	s := e.settings
	cb := pos.CostBasis
	hard := s.HardLevel(pos.Stage)

	p := status.Position{
		Quantity:           qty,
		AvgCostBasis:       cb,
		CurrentBuyPrice:    q.Ask,
		CurrentSellPrice:   q.Bid,
		GainLossPctBuy:     PnLPct(q.Ask, cb),
		GainLossPctSell:    PnLPct(q.Bid, cb),
		ValueUSD:           qty * q.Bid,
		DCATriggeredStages: pos.Stage,
		NextDCADisplay:     fmt.Sprintf("%.2f%%", hard),
		DCALinePrice:       PriceAtPct(cb, hard),
		DCALineSource:      dcaSourceHard,
	}
	p.DCALinePct = p.GainLossPctBuy

	// The higher of the two lines is hit first on the way down.
	if pos.Stage < s.SignalStages() {
		needed := SignalNeeded(pos.Stage, s)
		p.NextDCADisplay = fmt.Sprintf("%.2f%% / N%d", hard, needed)
		if ladder := e.signals.PriceLadder(pos.Symbol); len(ladder) >= needed {
			if line := ladder[needed-1]; line > p.DCALinePrice {
				p.DCALinePrice = line
				p.DCALineSource = fmt.Sprintf("NEURAL N%d", needed)
			}
		}
	}

	line := BaseLine(cb, pos.Stage, s)
	active := false
	if t := pos.Trail; t != nil && t.Sig == e.trailSig && (t.Active || t.Line > 0) {
		line = t.Line
		p.TrailPeak = t.Peak
		active = t.Active
	}
	p.TrailLine = line
	p.TrailActive = active || q.Bid >= line
	if line > 0 {
		p.DistToTrailPct = PnLPct(q.Bid, line)
	}
	return p
}
