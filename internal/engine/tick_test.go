package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dcatrader/internal/jsonfile"
	"dcatrader/internal/ledger"
	"dcatrader/internal/models"
	"dcatrader/internal/quotes"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickTrailingExitSellsWholePosition(t *testing.T) {
	h := newHarness(t, trailSettings())
	h.gw.balance = 1000
	h.hold("BTC", 1, 100)

	for _, bid := range []float64{105, 110} {
		h.gw.setQuote("BTC", bid, bid+0.1)
		report := h.tick(t)
		assert.Empty(t, report.Trades)
	}
	require.NotNil(t, h.eng.positions["BTC"].Trail)
	assert.True(t, h.eng.positions["BTC"].Trail.Active)

	h.gw.setQuote("BTC", 109.40, 109.50)
	report := h.tick(t)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagTrailSell, report.Trades[0].Tag)
	sells := h.gw.ordersOf(models.OrderSideSell)
	require.Len(t, sells, 1)
	assert.InDelta(t, 1, sells[0].Amount, 1e-12)

	_, held := h.eng.positions["BTC"]
	assert.False(t, held)
	_, ok := h.eng.rate.LastSell("BTC")
	assert.True(t, ok)

	d, ok := lastDecision(report, "BTC")
	require.True(t, ok)
	assert.Equal(t, status.ActionTrailSell, d.Action)
	assert.Equal(t, "Price 109.40000000 < trail line 109.45000000", d.Reason)
}

// seriesFor reports whether the named metric family carries a series labelled with sym.
func seriesFor(t *testing.T, name, sym string) bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "symbol" && l.GetValue() == sym {
					return true
				}
			}
		}
	}
	return false
}

func TestTickClosedPositionDropsItsMetrics(t *testing.T) {
	h := newHarness(t, trailSettings())
	h.gw.balance = 1000
	h.hold("SOL", 1, 100)

	for _, bid := range []float64{105, 110} {
		h.gw.setQuote("SOL", bid, bid+0.1)
		h.tick(t)
	}
	assert.True(t, seriesFor(t, "dcatrader_dca_stage", "SOL"))
	assert.True(t, seriesFor(t, "dcatrader_trail_active", "SOL"))

	h.gw.setQuote("SOL", 109.40, 109.50)
	report := h.tick(t)
	require.Len(t, report.Trades, 1)

	assert.False(t, seriesFor(t, "dcatrader_dca_stage", "SOL"))
	assert.False(t, seriesFor(t, "dcatrader_trail_active", "SOL"))
}

func TestTickFailedTrailSellRetriesNextTick(t *testing.T) {
	h := newHarness(t, trailSettings())
	h.gw.balance = 1000
	h.hold("BTC", 1, 100)

	for _, bid := range []float64{105, 110} {
		h.gw.setQuote("BTC", bid, bid+0.1)
		h.tick(t)
	}

	h.gw.sellErr = errFake
	h.gw.setQuote("BTC", 109.40, 109.50)
	report := h.tick(t)
	assert.Empty(t, report.Trades)
	require.NotNil(t, h.eng.positions["BTC"].Trail)
	assert.True(t, h.eng.positions["BTC"].Trail.WasAbove)

	h.gw.sellErr = nil
	report = h.tick(t)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagTrailSell, report.Trades[0].Tag)
}

func TestTickDCAAdvancesStageAndDeepensThreshold(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.gw.balance = 1000
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 96.9, 97)

	report := h.tick(t)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagDCA, report.Trades[0].Tag)
	buys := h.gw.ordersOf(models.OrderSideBuy)
	require.Len(t, buys, 1)
	assert.InDelta(t, 193.8, buys[0].Amount, 1e-9)

	pos := h.eng.positions["BTC"]
	assert.Equal(t, 1, pos.Stage)
	assert.Less(t, pos.CostBasis, 100.0)
	assert.Equal(t, 1, h.eng.rate.WindowCount("BTC", h.clock.now()))

	h.clock.advance(2 * time.Hour)
	report = h.tick(t)
	assert.Empty(t, report.Trades)
	d, ok := lastDecision(report, "BTC")
	require.True(t, ok)
	assert.Equal(t, status.ActionHold, d.Action)
	assert.Contains(t, d.Reason, "DCA -5.00%")
}

func TestTickRateLimitSkipsThirdBuy(t *testing.T) {
	s := testSettings("BTC")
	s.DCACooldownMinutes = 0
	h := newHarness(t, s)
	h.gw.balance = 10_000
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 98.9, 99)
	h.signals.levels["BTC"] = signal.Levels{Long: 7}

	h.tick(t)
	h.clock.advance(time.Minute)
	h.tick(t)
	h.clock.advance(time.Minute)
	report := h.tick(t)

	assert.Len(t, h.gw.ordersOf(models.OrderSideBuy), 2)
	d, ok := lastDecision(report, "BTC")
	require.True(t, ok)
	assert.Equal(t, status.ActionDCASkip, d.Action)
	assert.Equal(t, "24h limit (2/2)", d.Reason)
}

func TestTickInsufficientFundsSkipsDCA(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.gw.balance = 50
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 96.9, 97)

	report := h.tick(t)

	assert.Empty(t, report.Trades)
	d, _ := lastDecision(report, "BTC")
	assert.Equal(t, status.ActionDCASkip, d.Action)
	assert.Equal(t, KindFunds, d.Kind)
}

func TestTickEntryBuysMinimumAllocation(t *testing.T) {
	h := newHarness(t, testSettings("ETH"))
	h.gw.balance = 1000
	h.gw.setQuote("ETH", 1999, 2000)
	h.signals.levels["ETH"] = signal.Levels{Long: 3}

	report := h.tick(t)

	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagEntry, report.Trades[0].Tag)
	buys := h.gw.ordersOf(models.OrderSideBuy)
	require.Len(t, buys, 1)
	assert.InDelta(t, MinOrderUSD, buys[0].Amount, 1e-9)

	pos := h.eng.positions["ETH"]
	require.NotNil(t, pos)
	assert.Zero(t, pos.Stage)
	assert.InDelta(t, 2000, pos.CostBasis, 1e-9)

	report = h.tick(t)
	assert.Empty(t, report.Trades, "a held coin is not entered again")

	book := h.eng.ledger.Snapshot()
	assert.Contains(t, book.OpenPositions, "ETH")
	assert.InDelta(t, 999, report.Account.BuyingPower, 1e-9)
}

func TestTickEntryAllowedForTransferredCoin(t *testing.T) {
	h := newHarness(t, testSettings("ETH"))
	h.gw.balance = 1000
	h.gw.holdings["ETH"] = 0.5
	h.gw.setQuote("ETH", 1999, 2000)

	report := h.tick(t)
	assert.Empty(t, report.Trades)
	pos := h.eng.positions["ETH"]
	require.NotNil(t, pos)
	assert.True(t, pos.Unattributed)
	assert.Zero(t, pos.CostBasis)

	h.signals.levels["ETH"] = signal.Levels{Long: 3}
	report = h.tick(t)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagEntry, report.Trades[0].Tag)
	assert.False(t, h.eng.positions["ETH"].Unattributed)
	assert.InDelta(t, 2000, h.eng.positions["ETH"].CostBasis, 1e-9)

	report = h.tick(t)
	for _, tr := range report.Trades {
		assert.NotEqual(t, models.TagEntry, tr.Tag, "an attributed coin is not entered again")
	}
	assert.Len(t, h.gw.ordersOf(models.OrderSideBuy), 1)
}

func TestTickEntryRefusedWithoutSignal(t *testing.T) {
	h := newHarness(t, testSettings("ETH"))
	h.gw.balance = 1000
	h.gw.setQuote("ETH", 1999, 2000)
	h.signals.levels["ETH"] = signal.Levels{Long: 6, Short: 1}

	report := h.tick(t)
	h.tick(t)

	assert.Empty(t, report.Trades)
	d, _ := lastDecision(report, "ETH")
	assert.Equal(t, "Need L>=3 S=0", d.Reason)

	lines, err := jsonfile.ReadLines(filepath.Join(h.dir, status.SignalLogFileName))
	require.NoError(t, err)
	assert.Len(t, lines, 1, "repeated skips are logged once")
}

func TestTickSnapshotFallsBackToLastGood(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.gw.balance = 500
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 100, 100.1)

	first := h.tick(t)
	assert.False(t, first.Fallback)
	assert.InDelta(t, 600, first.Account.TotalValue, 1e-9)

	h.gw.quotesErr = errFake
	h.gw.balance = 1
	second := h.tick(t)
	assert.True(t, second.Fallback)
	assert.Equal(t, first.Account, second.Account)
}

func TestTickUsesQuoteBookWhenFeedFails(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	book, err := quotes.New(time.Minute)
	require.NoError(t, err)
	t.Cleanup(book.Close)
	h.eng.book = book

	h.gw.balance = 500
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 100, 100.1)
	h.tick(t)

	h.gw.quotesErr = errFake
	report := h.tick(t)
	assert.False(t, report.Fallback)
	d, ok := lastDecision(report, "BTC")
	require.True(t, ok)
	assert.Equal(t, status.ActionHold, d.Action)
}

func TestTickFailsWhenBalanceUnavailable(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.gw.balanceErr = errFake

	_, err := h.eng.Tick(context.Background())
	assert.ErrorIs(t, err, errFake)
}

func TestTickManualCommands(t *testing.T) {
	h := newHarness(t, testSettings("BTC", "ETH"))
	h.gw.balance = 1000
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 100, 100.1)
	h.gw.setQuote("ETH", 1999, 2000)

	writeCmd := func(body string) {
		require.NoError(t, os.WriteFile(h.eng.manual.Path(), []byte(body), 0o644))
	}

	writeCmd(`{"action":"SELL","symbol":"btc"}`)
	report := h.tick(t)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagManualSell, report.Trades[0].Tag)
	assert.NotContains(t, h.gw.holdings, "BTC")
	_, err := os.Stat(h.eng.manual.Path())
	assert.True(t, os.IsNotExist(err))

	writeCmd(`{"action":"buy","symbol":"ETH","amount_usd":"25"}`)
	report = h.tick(t)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, models.TagManualBuy, report.Trades[0].Tag)
	buys := h.gw.ordersOf(models.OrderSideBuy)
	require.Len(t, buys, 1)
	assert.InDelta(t, 25, buys[0].Amount, 1e-9)

	writeCmd(`{"action":"buy","symbol":"ETH","amount_usd":0.5}`)
	report = h.tick(t)
	assert.Empty(t, report.Trades)
}

func TestTickWritesStatus(t *testing.T) {
	h := newHarness(t, testSettings("BTC", "ETH"))
	h.gw.balance = 1000
	h.hold("BTC", 2, 100)
	h.gw.setQuote("BTC", 99, 99.5)
	h.gw.setQuote("ETH", 1999, 2000)
	h.signals.ladders["BTC"] = []float64{101, 100, 99, 98.5, 90}

	h.tick(t)

	var snap status.Snapshot
	require.NoError(t, jsonfile.Read(filepath.Join(h.dir, status.StatusFileName), &snap))
	assert.InDelta(t, 1000+2*99, snap.Account.TotalAccountValue, 1e-9)

	btc := snap.Positions["BTC"]
	assert.InDelta(t, 2, btc.Quantity, 1e-12)
	assert.InDelta(t, 100, btc.AvgCostBasis, 1e-9)
	assert.Equal(t, "-2.50% / N4", btc.NextDCADisplay)
	assert.Equal(t, "NEURAL N4", btc.DCALineSource)
	assert.InDelta(t, 98.5, btc.DCALinePrice, 1e-9)
	assert.InDelta(t, 105, btc.TrailLine, 1e-9)
	assert.False(t, btc.TrailActive)

	eth := snap.Positions["ETH"]
	assert.Zero(t, eth.Quantity)
	assert.Equal(t, "N/A", eth.DCALineSource)
	assert.InDelta(t, 2000, eth.CurrentBuyPrice, 1e-9)

	lines, err := jsonfile.ReadLines(filepath.Join(h.dir, status.AccountHistoryFileName))
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestRestoreDerivesStageAndSeedsWindow(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	t0 := h.clock.t
	h.gw.holdings["BTC"] = 3
	h.gw.addFilled("BTC", models.OrderSideBuy, 1, 100, t0.Add(-3*time.Hour))
	h.gw.addFilled("BTC", models.OrderSideBuy, 1, 97, t0.Add(-2*time.Hour))
	h.gw.addFilled("BTC", models.OrderSideBuy, 1, 94, t0.Add(-time.Hour))
	h.gw.setQuote("BTC", 95, 95.1)

	h.eng.ledger.RecordTrade(ledger.Trade{
		Side: models.OrderSideBuy, Symbol: "BTC", Qty: 1, Tag: models.TagDCA, OrderID: "dca-1", Delta: -97,
	})

	require.NoError(t, h.eng.Restore(context.Background()))

	pos := h.eng.positions["BTC"]
	require.NotNil(t, pos)
	assert.Equal(t, 2, pos.Stage)
	assert.InDelta(t, (100.0+97+94)/3, pos.CostBasis, 1e-9)
	assert.Equal(t, 1, h.eng.rate.WindowCount("BTC", h.clock.now()))
}

func TestRestoreKeepsPreviousOnHistoryFailure(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.hold("BTC", 1, 100)
	h.gw.setQuote("BTC", 100, 100.1)
	require.NoError(t, h.eng.Restore(context.Background()))
	h.eng.positions["BTC"].Stage = 3

	h.gw.historyErr["BTC"] = errFake
	h.eng.refreshPositions(context.Background(), map[string]float64{"BTC": 1}, map[string]models.Quote{"BTC": {Bid: 100, Ask: 100.1}}, false)

	assert.Equal(t, 3, h.eng.positions["BTC"].Stage)
	assert.InDelta(t, 100, h.eng.positions["BTC"].CostBasis, 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, testSettings("BTC"))
	h.gw.balance = 100

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, h.eng.Run(ctx))
}

func TestTickUnsettledBalanceFallsBackToEstimates(t *testing.T) {
	h := newHarness(t, testSettings("ETH"))
	h.gw.balance = 1000
	h.gw.deferBalance = true
	h.gw.setQuote("ETH", 1999, 2000)

	require.NoError(t, os.WriteFile(h.eng.manual.Path(), []byte(`{"action":"buy","symbol":"ETH","amount_usd":25}`), 0o644))
	report := h.tick(t)
	require.Len(t, report.Trades, 1)

	buy := report.Trades[0]
	require.NotNil(t, buy.BuyingPowerDelta)
	assert.InDelta(t, -25, *buy.BuyingPowerDelta, 1e-9)
	assert.InDelta(t, 25.0/2000, buy.Qty, 1e-12)
	pos, ok := h.eng.ledger.Position("ETH")
	require.True(t, ok)
	assert.InDelta(t, 25, pos.USDCost, 1e-9)

	h.gw.setQuote("ETH", 2200, 2201)
	require.NoError(t, os.WriteFile(h.eng.manual.Path(), []byte(`{"action":"sell","symbol":"ETH"}`), 0o644))
	report = h.tick(t)
	require.Len(t, report.Trades, 1)

	sell := report.Trades[0]
	require.NotNil(t, sell.BuyingPowerDelta)
	assert.InDelta(t, 25.0/2000*2200, *sell.BuyingPowerDelta, 1e-9)
	require.NotNil(t, sell.RealizedProfitUSD)
	assert.InDelta(t, 2.5, *sell.RealizedProfitUSD, 1e-9)
	assert.InDelta(t, 2.5, h.eng.ledger.TotalRealized(), 1e-9)
	_, ok = h.eng.ledger.Position("ETH")
	assert.False(t, ok)
}
