package engine

import (
	"context"
	"dcatrader/internal/exchange"
	"dcatrader/internal/models"
	"dcatrader/internal/status"
	"fmt"
)

// handleManual executes at most one dashboard command per tick.
func (e *Engine) handleManual(ctx context.Context, report *TickReport) {
	if e.manual == nil {
		return
	}
	cmd, ok, err := e.manual.Take()
	if err != nil {
		e.logEntry().WithError(err).Warn("Ручная команда не прочитана.")
		return
	}
	if !ok {
		return
	}

	entry := e.symbolEntry(cmd.Symbol).WithFields(map[string]interface{}{
		"action": cmd.Action,
		"amount": cmd.AmountUSD,
	})
	entry.Info("Получена ручная команда.")

	var rec models.TradeRecord
	switch cmd.Action {
	case status.ManualBuy:
		rec, err = e.manualBuy(ctx, cmd)
	case status.ManualSell:
		rec, err = e.manualSell(ctx, cmd)
	default:
		err = fmt.Errorf("неизвестное действие %q", cmd.Action)
	}
	if err != nil {
		entry.WithError(err).Warn("Ручная команда не выполнена.")
		return
	}
	report.Trades = append(report.Trades, rec)
}

func (e *Engine) manualBuy(ctx context.Context, cmd status.ManualCommand) (models.TradeRecord, error) {
	if cmd.AmountUSD < MinOrderUSD {
		return models.TradeRecord{}, fmt.Errorf("сумма %.2f меньше минимальной %.2f", cmd.AmountUSD, MinOrderUSD)
	}
	q, err := e.quoteFor(ctx, cmd.Symbol)
	if err != nil {
		return models.TradeRecord{}, err
	}

	costBasis := 0.0
	if pos, ok := e.positions[cmd.Symbol]; ok {
		costBasis = pos.CostBasis
	}
	rec, err := e.buy(ctx, cmd.Symbol, cmd.AmountUSD, q.Ask, costBasis, models.TagManualBuy)
	if err != nil {
		return models.TradeRecord{}, err
	}
	e.position(cmd.Symbol).DropTrail()
	return rec, nil
}

// manualSell always closes the whole holding.
func (e *Engine) manualSell(ctx context.Context, cmd status.ManualCommand) (models.TradeRecord, error) {
	holdings, err := e.gw.GetHoldings(ctx)
	if err != nil {
		return models.TradeRecord{}, fmt.Errorf("Не удалось получить позиции: %w", err)
	}
	qty := holdingsMap(holdings)[cmd.Symbol]
	if qty <= 0 {
		return models.TradeRecord{}, fmt.Errorf("нет позиции по %s", cmd.Symbol)
	}
	q, err := e.quoteFor(ctx, cmd.Symbol)
	if err != nil {
		return models.TradeRecord{}, err
	}

	costBasis := 0.0
	if pos, ok := e.positions[cmd.Symbol]; ok {
		costBasis = pos.CostBasis
	}
	rec, err := e.sell(ctx, cmd.Symbol, qty, q.Bid, costBasis, models.TagManualSell)
	if err != nil {
		return models.TradeRecord{}, err
	}
	e.rate.ResetForTrade(cmd.Symbol, true, e.now())
	e.position(cmd.Symbol).ResetTrade()
	return rec, nil
}

func (e *Engine) quoteFor(ctx context.Context, sym string) (models.Quote, error) {
	q, ok := e.fetchQuotes(ctx, []string{sym})[sym]
	if !ok || !q.Valid() {
		return models.Quote{}, fmt.Errorf("%w: %s", exchange.ErrNoQuote, sym)
	}
	return q, nil
}
