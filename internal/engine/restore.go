package engine

import (
	"context"
	"dcatrader/internal/metrics"
	"dcatrader/internal/models"
	"fmt"
)

// Restore rebuilds in-memory state after a restart: the DCA window from the trade audit
// trail, and cost basis plus stage for every held coin from the venue order history.
func (e *Engine) Restore(ctx context.Context) error {
	records, err := e.ledger.History().Records()
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось прочитать историю сделок, окно DCA начнётся с нуля.")
	}
	e.rate.Seed(records, e.now())

	holdings, err := e.gw.GetHoldings(ctx)
	if err != nil {
		return fmt.Errorf("Не удалось получить позиции: %w", err)
	}
	held := holdingsMap(holdings)
	quotes := e.fetchQuotes(ctx, sortedKeys(held))
	e.refreshPositions(ctx, held, quotes, false)
	e.restored = true

	for _, sym := range sortedKeys(e.positions) {
		pos := e.positions[sym]
		e.symbolEntry(sym).WithFields(map[string]interface{}{
			"qty":        formatFloatPlain(pos.Qty),
			"cost_basis": pos.CostBasis,
			"stage":      pos.Stage,
			"window":     e.rate.WindowCount(sym, e.now()),
		}).Info("Позиция восстановлена.")
	}
	return nil
}

// refreshPositions syncs positions with the venue. Coins no longer held are forgotten; a coin
// whose history could not be loaded keeps what was known before. After our own trade the
// venue history may lag, so the stage is never lowered then.
func (e *Engine) refreshPositions(ctx context.Context, held map[string]float64, quotes map[string]models.Quote, afterTrade bool) {
	for sym := range e.positions {
		if _, ok := held[sym]; !ok {
			delete(e.positions, sym)
			metrics.DropPosition(sym)
		}
	}

	results := e.loadHistories(ctx, held, quotes)
	for _, sym := range sortedKeys(held) {
		pos := e.position(sym)
		pos.Qty = held[sym]

		res, ok := results[sym]
		if !ok {
			continue
		}
		stage := res.stage
		if afterTrade && stage < pos.Stage {
			stage = pos.Stage
		}
		if stage != pos.Stage {
			e.symbolEntry(sym).WithFields(map[string]interface{}{
				"was": pos.Stage,
				"now": stage,
			}).Debug("Стадия DCA уточнена по истории ордеров.")
		}
		pos.CostBasis = res.costBasis
		pos.Stage = stage
		pos.Unattributed = !res.attributed
	}
}

// positionsStale reports whether the venue shows holdings the engine has no usable cost basis for.
// Holdings known to be unattributed are not reloaded until the next trade.
func (e *Engine) positionsStale(held map[string]float64, quotes map[string]models.Quote) bool {
	if len(held) != len(e.positions) {
		return true
	}
	for sym := range held {
		pos, ok := e.positions[sym]
		if !ok {
			return true
		}
		if q, ok := quotes[sym]; ok && q.Valid() && pos.CostBasis <= 0 && !pos.Unattributed {
			return true
		}
	}
	return false
}
