package engine

import (
	"context"
	"dcatrader/internal/exchange"
	"dcatrader/internal/ledger"
	"dcatrader/internal/metrics"
	"dcatrader/internal/models"
	"fmt"
	"math"
)

// Balance moves smaller than this are treated as not yet settled and replaced by an estimate.
const settleEpsilon = 0.01

// buy spends usd on sym at market and records the trade. The ask is the price estimate
// when the balance has not moved yet.
func (e *Engine) buy(ctx context.Context, sym string, usd, ask, costBasis float64, tag models.Tag) (models.TradeRecord, error) {
	if usd < MinOrderUSD {
		return models.TradeRecord{}, fmt.Errorf("%w: сумма %.2f меньше минимальной %.2f", exchange.ErrOrderRejected, usd, MinOrderUSD)
	}

	before, err := e.gw.GetBalance(ctx)
	if err != nil {
		return models.TradeRecord{}, fmt.Errorf("Не удалось получить баланс перед покупкой: %w", err)
	}

	e.symbolEntry(sym).WithFields(map[string]interface{}{
		"tag":     tag,
		"usd":     usd,
		"ask":     ask,
		"balance": before,
	}).Info("Попытка покупки.")

	orderID, err := e.gw.MarketBuy(ctx, sym, usd)
	if err != nil {
		metrics.IncOrderFailure(string(models.OrderSideBuy), string(tag))
		return models.TradeRecord{}, fmt.Errorf("Покупка %s не выполнена: %w", sym, err)
	}
	e.ledger.MarkPending(orderID, sym, models.OrderSideBuy)

	after := e.balanceAfter(ctx, sym, before)
	delta := after - before
	if delta > -settleEpsilon {
		delta = -usd
	}
	qty := 0.0
	if ask > 0 {
		qty = math.Abs(delta) / ask
	}

	rec := e.ledger.RecordTrade(ledger.Trade{
		Side:          models.OrderSideBuy,
		Symbol:        sym,
		Qty:           qty,
		Price:         ask,
		AvgCostBasis:  costBasis,
		Tag:           tag,
		OrderID:       orderID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Delta:         delta,
	})
	metrics.IncOrder(string(models.OrderSideBuy), string(tag))

	e.symbolEntry(sym).WithFields(map[string]interface{}{
		"order_id": orderID,
		"tag":      tag,
		"qty":      formatFloatPlain(qty),
		"spent":    -delta,
	}).Info("Покупка выполнена.")
	return rec, nil
}

// sell closes qty of sym at market and records the trade with its gain against costBasis.
func (e *Engine) sell(ctx context.Context, sym string, qty, bid, costBasis float64, tag models.Tag) (models.TradeRecord, error) {
	if qty <= 0 {
		return models.TradeRecord{}, fmt.Errorf("%w: нулевое количество", exchange.ErrOrderRejected)
	}

	before, err := e.gw.GetBalance(ctx)
	if err != nil {
		return models.TradeRecord{}, fmt.Errorf("Не удалось получить баланс перед продажей: %w", err)
	}

	e.symbolEntry(sym).WithFields(map[string]interface{}{
		"tag":     tag,
		"qty":     formatFloatPlain(qty),
		"bid":     bid,
		"balance": before,
	}).Info("Попытка продажи.")

	orderID, err := e.gw.MarketSell(ctx, sym, qty)
	if err != nil {
		metrics.IncOrderFailure(string(models.OrderSideSell), string(tag))
		return models.TradeRecord{}, fmt.Errorf("Продажа %s не выполнена: %w", sym, err)
	}
	e.ledger.MarkPending(orderID, sym, models.OrderSideSell)

	after := e.balanceAfter(ctx, sym, before)
	delta := after - before
	if delta < settleEpsilon {
		delta = qty * bid
	}

	var pnl *float64
	if costBasis > 0 {
		pnl = models.Float(PnLPct(bid, costBasis))
	}

	rec := e.ledger.RecordTrade(ledger.Trade{
		Side:          models.OrderSideSell,
		Symbol:        sym,
		Qty:           qty,
		Price:         bid,
		AvgCostBasis:  costBasis,
		PnLPct:        pnl,
		Tag:           tag,
		OrderID:       orderID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Delta:         delta,
	})
	metrics.IncOrder(string(models.OrderSideSell), string(tag))

	e.symbolEntry(sym).WithFields(map[string]interface{}{
		"order_id": orderID,
		"tag":      tag,
		"qty":      formatFloatPlain(qty),
		"received": delta,
	}).Info("Продажа выполнена.")
	return rec, nil
}

// balanceAfter waits for the order to settle and reads the balance again. The order is
// already placed, so accounting goes on even if ctx is cancelled meanwhile.
func (e *Engine) balanceAfter(ctx context.Context, sym string, before float64) float64 {
	_ = sleepCtx(ctx, e.settleDelay())
	after, err := e.gw.GetBalance(context.WithoutCancel(ctx))
	if err != nil {
		e.symbolEntry(sym).WithError(err).Warn("Не удалось получить баланс после ордера, сумма будет оценена.")
		return before
	}
	return after
}
