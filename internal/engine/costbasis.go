package engine

import (
	"context"
	"dcatrader/internal/models"
	"math"
	"sort"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// CostBasis matches the held quantity against filled buys, newest first, and returns the
// average price paid for it. Quantity the history cannot explain is valued at fallbackPrice
// so it carries no gain or loss.
func CostBasis(held float64, orders []models.Order, fallbackPrice float64) float64 {
	if held <= 0 {
		return 0
	}

	buys := lo.Filter(orders, func(o models.Order, _ int) bool {
		return o.IsFilled() && o.Side == models.OrderSideBuy
	})
	sort.SliceStable(buys, func(i, j int) bool {
		return buys[i].CreatedAt.After(buys[j].CreatedAt)
	})

	remaining := held
	cost := 0.0
	for _, o := range buys {
		for _, f := range o.Fills {
			if remaining <= 0 {
				break
			}
			if f.Qty <= 0 || f.Price <= 0 {
				continue
			}
			take := math.Min(f.Qty, remaining)
			cost += take * f.Price
			remaining -= take
		}
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		cost += remaining * fallbackPrice
	}
	return CalcAvgPrice(cost, held)
}

// StageFromHistory counts the DCA buys of the current trade: filled buys after the
// latest sell, minus the entry buy.
func StageFromHistory(orders []models.Order) int {
	filled := lo.Filter(orders, func(o models.Order, _ int) bool { return o.IsFilled() })
	sort.SliceStable(filled, func(i, j int) bool {
		return filled[i].CreatedAt.Before(filled[j].CreatedAt)
	})

	buys := 0
	for _, o := range filled {
		switch o.Side {
		case models.OrderSideSell:
			buys = 0
		case models.OrderSideBuy:
			buys++
		}
	}
	if buys <= 1 {
		return 0
	}
	return buys - 1
}

// historyResult is one symbol's reconstruction. A history with no filled buy means the coin
// was never bought here, so it carries no cost basis.
type historyResult struct {
	costBasis  float64
	stage      int
	attributed bool
}

// loadHistories fetches order history for every held symbol with a usable quote, bounded
// by the configured concurrency. Symbols whose lookup fails are left out.
func (e *Engine) loadHistories(ctx context.Context, held map[string]float64, quotes map[string]models.Quote) map[string]historyResult {
	var (
		mu  sync.Mutex
		out = make(map[string]historyResult, len(held))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.historyConcurrency())

	for _, sym := range sortedKeys(held) {
		qty := held[sym]
		q, ok := quotes[sym]
		if !ok || !q.Valid() {
			e.logEntry().WithField("symbol", sym).Warn("Нет котировки, себестоимость не пересчитана.")
			continue
		}
		g.Go(func() error {
			orders, err := e.gw.ListOrders(gctx, sym)
			if err != nil {
				e.logEntry().WithField("symbol", sym).WithError(err).Warn("Не удалось получить историю ордеров.")
				return nil
			}
			res := historyResult{stage: StageFromHistory(orders)}
			if lo.ContainsBy(orders, func(o models.Order) bool {
				return o.IsFilled() && o.Side == models.OrderSideBuy
			}) {
				res.attributed = true
				res.costBasis = CostBasis(qty, orders, q.Ask)
			}
			mu.Lock()
			out[sym] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
