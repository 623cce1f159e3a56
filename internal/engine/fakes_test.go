package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"dcatrader/internal/config"
	"dcatrader/internal/ledger"
	"dcatrader/internal/logger"
	"dcatrader/internal/models"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"
)

var errFake = errors.New("fake failure")

type placedOrder struct {
	ID     string
	Symbol string
	Side   models.OrderSide
	Amount float64
}

// fakeGateway fills market orders instantly at the current quote and keeps an order history.
type fakeGateway struct {
	mu sync.Mutex

	now      func() time.Time
	balance  float64
	holdings map[string]float64
	quotes   map[string]models.Quote
	orders   map[string][]models.Order

	balanceErr  error
	holdingsErr error
	quotesErr   error
	historyErr  map[string]error
	buyErr      error
	sellErr     error

	// deferBalance leaves the cash balance untouched by fills, as if settlement lagged.
	deferBalance bool
	// onBalance runs on every balance read, before the lock is taken.
	onBalance func()

	placed []placedOrder
	seq    int
}

func newFakeGateway(now func() time.Time) *fakeGateway {
	return &fakeGateway{
		now:        now,
		holdings:   map[string]float64{},
		quotes:     map[string]models.Quote{},
		orders:     map[string][]models.Order{},
		historyErr: map[string]error{},
	}
}

func (g *fakeGateway) setQuote(sym string, bid, ask float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[sym] = models.Quote{Bid: bid, Ask: ask}
}

// addFilled appends a filled order to the venue history.
func (g *fakeGateway) addFilled(sym string, side models.OrderSide, qty, price float64, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.orders[sym] = append(g.orders[sym], models.Order{
		ID:        fmt.Sprintf("hist-%d", g.seq),
		Symbol:    sym,
		Side:      side,
		State:     models.OrderStateFilled,
		CreatedAt: at,
		Fills:     []models.Fill{{Qty: qty, Price: price}},
	})
}

func (g *fakeGateway) ordersOf(side models.OrderSide) []placedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []placedOrder
	for _, p := range g.placed {
		if p.Side == side {
			out = append(out, p)
		}
	}
	return out
}

func (g *fakeGateway) GetBalance(context.Context) (float64, error) {
	if g.onBalance != nil {
		g.onBalance()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balanceErr != nil {
		return 0, g.balanceErr
	}
	return g.balance, nil
}

func (g *fakeGateway) GetHoldings(context.Context) ([]models.Holding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holdingsErr != nil {
		return nil, g.holdingsErr
	}
	out := make([]models.Holding, 0, len(g.holdings))
	for sym, qty := range g.holdings {
		out = append(out, models.Holding{Symbol: sym, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (g *fakeGateway) GetBestBidAsk(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.quotesErr != nil {
		return nil, g.quotesErr
	}
	out := map[string]models.Quote{}
	for _, sym := range symbols {
		if q, ok := g.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

func (g *fakeGateway) ListOrders(_ context.Context, symbol string) ([]models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.historyErr[symbol]; err != nil {
		return nil, err
	}
	return append([]models.Order(nil), g.orders[symbol]...), nil
}

func (g *fakeGateway) MarketBuy(_ context.Context, symbol string, usd float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.buyErr != nil {
		return "", g.buyErr
	}
	q := g.quotes[symbol]
	qty := usd / q.Ask
	if !g.deferBalance {
		g.balance -= usd
	}
	g.holdings[symbol] += qty
	return g.fill(symbol, models.OrderSideBuy, qty, q.Ask, usd), nil
}

func (g *fakeGateway) MarketSell(_ context.Context, symbol string, qty float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sellErr != nil {
		return "", g.sellErr
	}
	q := g.quotes[symbol]
	if !g.deferBalance {
		g.balance += qty * q.Bid
	}
	g.holdings[symbol] -= qty
	if g.holdings[symbol] <= 1e-12 {
		delete(g.holdings, symbol)
	}
	return g.fill(symbol, models.OrderSideSell, qty, q.Bid, qty), nil
}

func (g *fakeGateway) fill(symbol string, side models.OrderSide, qty, price, amount float64) string {
	g.seq++
	id := fmt.Sprintf("ord-%d", g.seq)
	g.orders[symbol] = append(g.orders[symbol], models.Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		State:     models.OrderStateFilled,
		CreatedAt: g.now(),
		Fills:     []models.Fill{{Qty: qty, Price: price}},
	})
	g.placed = append(g.placed, placedOrder{ID: id, Symbol: symbol, Side: side, Amount: amount})
	return id
}

type fakeSignals struct {
	levels  map[string]signal.Levels
	ladders map[string][]float64
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{levels: map[string]signal.Levels{}, ladders: map[string][]float64{}}
}

func (s *fakeSignals) Levels(symbol string) signal.Levels { return s.levels[symbol] }

func (s *fakeSignals) PriceLadder(symbol string) []float64 { return s.ladders[symbol] }

type fakeSettings struct {
	s       config.Settings
	changed bool
}

func (f *fakeSettings) Snapshot() (config.Settings, bool) {
	changed := f.changed
	f.changed = false
	return f.s, changed
}

func (f *fakeSettings) set(s config.Settings) {
	f.s = s
	f.changed = true
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	eng      *Engine
	gw       *fakeGateway
	signals  *fakeSignals
	settings *fakeSettings
	clock    *testClock
	dir      string
}

func testSettings(coins ...string) config.Settings {
	s := config.DefaultSettings()
	s.Coins = coins
	return s
}

func newHarness(t *testing.T, s config.Settings) *harness {
	t.Helper()

	sigs := newFakeSignals()
	settings := &fakeSettings{s: s}
	h := newHarnessWith(t, t.TempDir(), settings, sigs)
	h.signals = sigs
	h.settings = settings
	return h
}

// newHarnessWith builds the engine over caller-supplied settings and signal sources.
func newHarnessWith(t *testing.T, dir string, settings SettingsSource, sigs signal.Source) *harness {
	t.Helper()

	clock := &testClock{t: time.Now().Truncate(time.Second)}
	gw := newFakeGateway(clock.now)

	cfg := &config.Config{
		Exchange: config.ExchangeConfig{HistoryMx: 2},
		Runtime: config.RuntimeConfig{
			LoopInterval: time.Millisecond,
			ErrorBackoff: time.Millisecond,
		},
		Paths: config.PathsConfig{HubDir: dir},
	}
	log := logger.NewNop()
	eng := New(cfg, Deps{
		Gateway:   gw,
		Signals:   sigs,
		Settings:  settings,
		Ledger:    ledger.Open(dir, log),
		Status:    status.NewWriter(dir),
		SignalLog: status.NewSignalLog(dir),
		Manual:    status.NewManualInbox(dir),
	}, log)
	eng.now = clock.now

	return &harness{eng: eng, gw: gw, clock: clock, dir: dir}
}

// hold gives the account qty of sym bought at price an hour before the test clock.
func (h *harness) hold(sym string, qty, price float64) {
	h.gw.holdings[sym] = qty
	h.gw.addFilled(sym, models.OrderSideBuy, qty, price, h.clock.t.Add(-time.Hour))
}

func (h *harness) tick(t *testing.T) TickReport {
	t.Helper()
	report, err := h.eng.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return report
}

func lastDecision(report TickReport, sym string) (Decision, bool) {
	for i := len(report.Decisions) - 1; i >= 0; i-- {
		if report.Decisions[i].Symbol == sym {
			return report.Decisions[i], true
		}
	}
	return Decision{}, false
}
