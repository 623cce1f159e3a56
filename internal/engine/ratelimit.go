package engine

import (
	"dcatrader/internal/ledger"
	"dcatrader/internal/models"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
)

const DCAWindow = 24 * time.Hour

// RateTracker counts DCA buys per symbol inside a rolling window. Only buys after the
// symbol's latest sell are counted, so every trade starts with an empty window.
type RateTracker struct {
	window   time.Duration
	buys     map[string][]time.Time
	lastSell map[string]time.Time
}

func NewRateTracker(window time.Duration) *RateTracker {
	return &RateTracker{
		window:   window,
		buys:     map[string][]time.Time{},
		lastSell: map[string]time.Time{},
	}
}

func (r *RateTracker) prune(sym string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	boundary := r.lastSell[sym]
	kept := lo.Filter(r.buys[sym], func(ts time.Time, _ int) bool {
		return ts.After(boundary) && !ts.Before(cutoff)
	})
	if len(kept) == 0 {
		delete(r.buys, sym)
		return nil
	}
	r.buys[sym] = kept
	return kept
}

func (r *RateTracker) WindowCount(sym string, now time.Time) int {
	return len(r.prune(sym, now))
}

func (r *RateTracker) NoteBuy(sym string, ts time.Time) {
	r.buys[sym] = append(r.buys[sym], ts)
	r.prune(sym, ts)
}

// ResetForTrade starts a fresh window. A sell also moves the trade boundary.
func (r *RateTracker) ResetForTrade(sym string, sold bool, ts time.Time) {
	if sold {
		r.lastSell[sym] = ts
	}
	delete(r.buys, sym)
}

func (r *RateTracker) LastBuy(sym string) (time.Time, bool) {
	buys := r.buys[sym]
	if len(buys) == 0 {
		return time.Time{}, false
	}
	return buys[len(buys)-1], true
}

func (r *RateTracker) LastSell(sym string) (time.Time, bool) {
	ts, ok := r.lastSell[sym]
	return ts, ok
}

// Seed rebuilds the window from the audit trail: DCA buys after each symbol's latest
// sell and inside the window survive.
func (r *RateTracker) Seed(records []models.TradeRecord, now time.Time) {
	r.buys = map[string][]time.Time{}
	r.lastSell = map[string]time.Time{}

	for _, rec := range records {
		if rec.Side != models.OrderSideSell {
			continue
		}
		sym := ledger.BaseSymbol(rec.Symbol)
		if ts := rec.Time(); ts.After(r.lastSell[sym]) {
			r.lastSell[sym] = ts
		}
	}

	cutoff := now.Add(-r.window)
	for _, rec := range records {
		if rec.Side != models.OrderSideBuy || rec.Tag != models.TagDCA {
			continue
		}
		sym := ledger.BaseSymbol(rec.Symbol)
		ts := rec.Time()
		if ts.After(r.lastSell[sym]) && !ts.Before(cutoff) {
			r.buys[sym] = append(r.buys[sym], ts)
		}
	}
	for sym := range r.buys {
		sort.Slice(r.buys[sym], func(i, j int) bool { return r.buys[sym][i].Before(r.buys[sym][j]) })
	}
}

type GateReason string

const (
	GateWindow   GateReason = "window"
	GateCooldown GateReason = "cooldown"
)

type GateResult struct {
	Allowed     bool
	Reason      GateReason
	Count       int
	Max         int
	MinutesLeft float64
	Cooldown    time.Duration
}

func (g GateResult) Message() string {
	switch g.Reason {
	case GateWindow:
		return fmt.Sprintf("24h limit (%d/%d)", g.Count, g.Max)
	case GateCooldown:
		return fmt.Sprintf("Cooldown (%.0fm left of %.0fm)", math.Ceil(g.MinutesLeft), g.Cooldown.Minutes())
	default:
		return ""
	}
}

// Gate decides whether another DCA buy is allowed now. The window is checked before the cooldown.
func (r *RateTracker) Gate(sym string, now time.Time, maxBuys int, cooldown time.Duration) GateResult {
	res := GateResult{Count: r.WindowCount(sym, now), Max: maxBuys, Cooldown: cooldown}
	if res.Count >= maxBuys {
		res.Reason = GateWindow
		return res
	}
	if cooldown > 0 {
		if last, ok := r.LastBuy(sym); ok {
			if elapsed := now.Sub(last); elapsed < cooldown {
				res.Reason = GateCooldown
				res.MinutesLeft = (cooldown - elapsed).Minutes()
				return res
			}
		}
	}
	res.Allowed = true
	return res
}
