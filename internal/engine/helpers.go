package engine

import (
	"cmp"
	"context"
	"dcatrader/internal/models"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const defaultHistoryConcurrency = 4

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}

// holdingsMap folds holdings by symbol, dropping empty and non-positive entries.
func holdingsMap(holdings []models.Holding) map[string]float64 {
	out := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		sym := strings.ToUpper(strings.TrimSpace(h.Symbol))
		if sym == "" || h.Qty <= 0 {
			continue
		}
		out[sym] += h.Qty
	}
	return out
}

// watchList is every symbol the tick needs a quote for: held coins plus tracked ones.
func watchList(held map[string]float64, coins []string) []string {
	syms := append(sortedKeys(held), coins...)
	syms = lo.Uniq(lo.Map(syms, func(s string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(s))
	}))
	syms = lo.Compact(syms)
	slices.Sort(syms)
	return syms
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) historyConcurrency() int {
	if e.cfg != nil && e.cfg.Exchange.HistoryMx > 0 {
		return e.cfg.Exchange.HistoryMx
	}
	return defaultHistoryConcurrency
}

func (e *Engine) settleDelay() time.Duration {
	if e.cfg == nil {
		return 0
	}
	return e.cfg.Runtime.SettleDelay
}

// fetchQuotes asks the venue for fresh quotes and fills the gaps from the last-good book.
// A failed request leaves only cached quotes.
func (e *Engine) fetchQuotes(ctx context.Context, syms []string) map[string]models.Quote {
	if len(syms) == 0 {
		return map[string]models.Quote{}
	}
	fresh, err := e.gw.GetBestBidAsk(ctx, syms)
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось получить котировки, используются последние известные.")
		fresh = nil
	}
	if e.book != nil {
		return e.book.Merge(syms, fresh)
	}
	return lo.PickBy(fresh, func(_ string, q models.Quote) bool { return q.Valid() })
}
