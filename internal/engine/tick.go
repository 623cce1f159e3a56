package engine

import (
	"context"
	"dcatrader/internal/models"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"
	"fmt"
)

// AccountSnapshot is the account valuation of one tick, sell side for holdings.
type AccountSnapshot struct {
	TotalValue        float64
	BuyingPower       float64
	HoldingsSellValue float64
	HoldingsBuyValue  float64
	PercentInTrade    float64
}

// TickReport summarises what one tick did.
type TickReport struct {
	Trades    []models.TradeRecord
	Decisions []Decision
	Account   AccountSnapshot
	// Fallback is set when Account is the last complete snapshot rather than this tick's.
	Fallback bool
}

// Tick runs one full pass: commands, settings, valuation, exits and DCA for held coins,
// entries for the rest, then the status file. Only failures to read the account abort it.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	if !e.restored {
		if err := e.Restore(ctx); err != nil {
			return report, fmt.Errorf("Не удалось восстановить состояние: %w", err)
		}
	}

	if err := e.signalLog.Rotate(); err != nil {
		e.logEntry().WithError(err).Warn("Не удалось обрезать журнал сигналов.")
	}
	e.handleManual(ctx, &report)
	e.reloadSettings()

	power, err := e.gw.GetBalance(ctx)
	if err != nil {
		return report, fmt.Errorf("Не удалось получить баланс: %w", err)
	}
	holdings, err := e.gw.GetHoldings(ctx)
	if err != nil {
		return report, fmt.Errorf("Не удалось получить позиции: %w", err)
	}
	held := holdingsMap(holdings)
	quotes := e.fetchQuotes(ctx, watchList(held, e.settings.Coins))

	if len(report.Trades) > 0 || e.positionsStale(held, quotes) {
		e.refreshPositions(ctx, held, quotes, len(report.Trades) > 0)
	}

	report.Account, report.Fallback = e.accountSnapshot(power, held, quotes)
	if report.Fallback {
		e.logEntry().Debug("Оценка счёта неполная, используется последняя полная.")
	}

	executed := len(report.Trades)

	for _, sym := range sortedKeys(held) {
		pos, ok := e.positions[sym]
		if !ok || pos.CostBasis <= 0 {
			continue
		}
		q, ok := quotes[sym]
		if !ok || !q.Valid() {
			e.symbolEntry(sym).Debug("Нет котировки, решение пропущено.")
			continue
		}
		levels := e.signals.Levels(sym)

		if e.manageExit(ctx, pos, q, levels, &report) {
			continue
		}
		power = e.manageDCA(ctx, pos, q, levels, power, &report)
	}

	if report.Account.TotalValue > 0 {
		power = e.manageEntries(ctx, held, quotes, report.Account.TotalValue, power, &report)
	}

	if len(report.Trades) > executed {
		held, quotes, power = e.afterTrades(ctx, held, quotes, power)
		report.Account, report.Fallback = e.accountSnapshot(power, held, quotes)
	}

	e.publish(report.Account, held, quotes)
	return report, nil
}

// manageExit steps the trailing exit and sells the whole position on a downward crossing.
// A failed sell leaves the trail as it was before this tick so the exit fires again.
func (e *Engine) manageExit(ctx context.Context, pos *Position, q models.Quote, levels signal.Levels, report *TickReport) bool {
	trail := e.trailFor(pos)
	prev := *trail
	if !trail.Step(pos.CostBasis, pos.Stage, q.Bid, e.settings) {
		return false
	}

	d := Decision{
		Symbol: pos.Symbol,
		Action: status.ActionTrailSell,
		Kind:   KindTrail,
		Reason: fmt.Sprintf("Price %.8f < trail line %.8f", q.Bid, trail.Line),
		Amount: pos.Qty * q.Bid,
		Stage:  pos.Stage,
		Levels: levels,
	}
	report.Decisions = append(report.Decisions, d)

	rec, err := e.sell(ctx, pos.Symbol, pos.Qty, q.Bid, pos.CostBasis, models.TagTrailSell)
	if err != nil {
		*trail = prev
		e.symbolEntry(pos.Symbol).WithError(err).Warn("Выход по трейлингу не выполнен, повтор на следующем тике.")
		return false
	}

	e.logDecision(d, map[string]any{
		"sell_price": q.Bid,
		"trail_line": trail.Line,
		"pnl_pct":    PnLPct(q.Bid, pos.CostBasis),
	})
	report.Trades = append(report.Trades, rec)
	e.rate.ResetForTrade(pos.Symbol, true, e.now())
	pos.ResetTrade()
	return true
}

// manageDCA evaluates one averaging-down step and returns the buying power left.
func (e *Engine) manageDCA(ctx context.Context, pos *Position, q models.Quote, levels signal.Levels, power float64, report *TickReport) float64 {
	s := e.settings
	now := e.now()

	d := EvaluateDCA(DCAInput{
		Symbol:      pos.Symbol,
		Stage:       pos.Stage,
		CostBasis:   pos.CostBasis,
		Qty:         pos.Qty,
		Bid:         q.Bid,
		Ask:         q.Ask,
		BuyingPower: power,
		Levels:      levels,
		Gate:        e.rate.Gate(pos.Symbol, now, s.MaxDCABuysPerWindow, s.Cooldown()),
	}, s)
	report.Decisions = append(report.Decisions, d)

	switch d.Action {
	case status.ActionHold:
		e.logDecision(d, map[string]any{
			"pnl_buy":    PnLPct(q.Ask, pos.CostBasis),
			"hard_level": s.HardLevel(pos.Stage),
		})
		return power
	case status.ActionDCASkip:
		e.logDecision(d, map[string]any{"stage": pos.Stage, "amount": d.Amount})
		return power
	}

	rec, err := e.buy(ctx, pos.Symbol, d.Amount, q.Ask, pos.CostBasis, models.TagDCA)
	if err != nil {
		e.symbolEntry(pos.Symbol).WithError(err).Warn("Покупка DCA не выполнена.")
		return power
	}

	e.logDecision(d, map[string]any{"stage": pos.Stage, "amount": d.Amount})
	report.Trades = append(report.Trades, rec)
	pos.Stage++
	pos.DropTrail()
	e.rate.NoteBuy(pos.Symbol, now)
	return power + spent(rec)
}

// manageEntries opens trades for tracked coins that are not held at all.
func (e *Engine) manageEntries(ctx context.Context, held map[string]float64, quotes map[string]models.Quote, total, power float64, report *TickReport) float64 {
	for _, sym := range watchList(nil, e.settings.Coins) {
		q, ok := quotes[sym]
		if !ok || !q.Valid() {
			continue
		}
		if held[sym] > 0 && e.attributed(sym) {
			continue
		}

		d := EvaluateEntry(sym, e.signals.Levels(sym), total, power, e.settings)
		report.Decisions = append(report.Decisions, d)
		if d.Action != status.ActionEntry {
			e.logDecision(d, nil)
			continue
		}

		rec, err := e.buy(ctx, sym, d.Amount, q.Ask, 0, models.TagEntry)
		if err != nil {
			e.symbolEntry(sym).WithError(err).Warn("Вход не выполнен.")
			continue
		}

		e.logDecision(d, map[string]any{"amount": d.Amount})
		report.Trades = append(report.Trades, rec)
		e.rate.ResetForTrade(sym, false, e.now())
		e.position(sym).ResetTrade()
		power += spent(rec)
	}
	return power
}

// attributed reports whether the bot owns a cost basis for sym, from venue fills or its own ledger.
// Coins that arrived by transfer have neither and stay open for an entry.
func (e *Engine) attributed(sym string) bool {
	if pos, ok := e.positions[sym]; ok && pos.CostBasis > 0 {
		return true
	}
	_, ok := e.ledger.Position(sym)
	return ok
}

// afterTrades re-reads the account once the orders settled and recomputes cost basis and stages.
// Anything that cannot be re-read keeps its pre-trade value.
func (e *Engine) afterTrades(ctx context.Context, held map[string]float64, quotes map[string]models.Quote, power float64) (map[string]float64, map[string]models.Quote, float64) {
	if p, err := e.gw.GetBalance(ctx); err == nil {
		power = p
	} else {
		e.logEntry().WithError(err).Warn("Не удалось обновить баланс после сделок.")
	}

	holdings, err := e.gw.GetHoldings(ctx)
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось обновить позиции после сделок.")
		return held, quotes, power
	}
	held = holdingsMap(holdings)
	quotes = e.fetchQuotes(ctx, watchList(held, e.settings.Coins))
	e.refreshPositions(ctx, held, quotes, true)
	return held, quotes, power
}

// accountSnapshot values the account. When a held coin has no price or the total is not
// positive, the last complete snapshot is returned instead and fallback is set.
func (e *Engine) accountSnapshot(power float64, held map[string]float64, quotes map[string]models.Quote) (AccountSnapshot, bool) {
	snap := AccountSnapshot{BuyingPower: power}
	complete := true
	for sym, qty := range held {
		q, ok := quotes[sym]
		if !ok || !q.Valid() {
			complete = false
			continue
		}
		snap.HoldingsSellValue += qty * q.Bid
		snap.HoldingsBuyValue += qty * q.Ask
	}
	snap.TotalValue = power + snap.HoldingsSellValue
	if snap.TotalValue > 0 {
		snap.PercentInTrade = snap.HoldingsSellValue / snap.TotalValue * 100
	}

	if !complete || snap.TotalValue <= 0 {
		if e.lastGood != nil {
			return *e.lastGood, true
		}
		return snap, true
	}
	good := snap
	e.lastGood = &good
	return snap, false
}

// spent is the signed buying power change of a recorded trade.
func spent(rec models.TradeRecord) float64 {
	if rec.BuyingPowerDelta == nil {
		return 0
	}
	return *rec.BuyingPowerDelta
}
