package ledger

import (
	"dcatrader/internal/jsonfile"
	"dcatrader/internal/logger"
	"dcatrader/internal/models"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	FileName        = "pnl_ledger.json"
	HistoryFileName = "trade_history.jsonl"

	DustQty  = 1e-12
	DustCost = 1e-6
)

type Position struct {
	USDCost float64 `json:"usd_cost"`
	Qty     float64 `json:"qty"`
}

type PendingOrder struct {
	Symbol string           `json:"symbol"`
	Side   models.OrderSide `json:"side"`
	TS     float64          `json:"ts"`
}

// Book is the persisted ledger document.
type Book struct {
	TotalRealizedProfitUSD float64                 `json:"total_realized_profit_usd"`
	LastUpdatedTS          float64                 `json:"last_updated_ts"`
	OpenPositions          map[string]Position     `json:"open_positions"`
	PendingOrders          map[string]PendingOrder `json:"pending_orders"`
}

// Trade is one executed market order together with the balances observed around it.
// Delta is the balance change the accounting uses, already corrected for unsettled balances.
type Trade struct {
	Side          models.OrderSide
	Symbol        string
	Qty           float64
	Price         float64
	AvgCostBasis  float64
	PnLPct        *float64
	Tag           models.Tag
	OrderID       string
	BalanceBefore float64
	BalanceAfter  float64
	Delta         float64
}

type Ledger struct {
	path    string
	history *History
	log     *logger.Logger
	now     func() time.Time

	book Book
}

// Open loads the ledger from dir. Pending orders are dropped: market orders fill synchronously,
// so anything left there is stale.
func Open(dir string, log *logger.Logger) *Ledger {
	l := &Ledger{
		path:    filepath.Join(dir, FileName),
		history: NewHistory(filepath.Join(dir, HistoryFileName)),
		log:     log,
		now:     time.Now,
	}

	if err := jsonfile.Read(l.path, &l.book); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logEntry().WithError(err).Warn("Леджер повреждён, начинаем с пустого.")
		}
		l.book = Book{}
	}
	if l.book.OpenPositions == nil {
		l.book.OpenPositions = map[string]Position{}
	}
	if n := len(l.book.PendingOrders); n > 0 {
		l.logEntry().WithField("pending", n).Info("Очистка зависших ордеров в леджере.")
	}
	l.book.PendingOrders = map[string]PendingOrder{}
	l.save()

	return l
}

func (l *Ledger) History() *History {
	return l.history
}

func (l *Ledger) TotalRealized() float64 {
	return l.book.TotalRealizedProfitUSD
}

func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.book.OpenPositions[symbol]
	return p, ok
}

// Snapshot returns a deep copy of the ledger document.
func (l *Ledger) Snapshot() Book {
	out := l.book
	out.OpenPositions = make(map[string]Position, len(l.book.OpenPositions))
	for k, v := range l.book.OpenPositions {
		out.OpenPositions[k] = v
	}
	out.PendingOrders = make(map[string]PendingOrder, len(l.book.PendingOrders))
	for k, v := range l.book.PendingOrders {
		out.PendingOrders[k] = v
	}
	return out
}

func (l *Ledger) MarkPending(orderID, symbol string, side models.OrderSide) {
	if orderID == "" {
		return
	}
	l.book.PendingOrders[orderID] = PendingOrder{Symbol: symbol, Side: side, TS: models.UnixFloat(l.now())}
	l.save()
}

// RecordTrade applies a trade to the open position cost and realized profit, persists the ledger
// and appends the audit record. Persistence failures are logged; in-memory state stays authoritative.
func (l *Ledger) RecordTrade(t Trade) models.TradeRecord {
	sym := BaseSymbol(t.Symbol)
	rec := models.TradeRecord{
		TS:                models.UnixFloat(l.now()),
		Side:              t.Side,
		Tag:               t.Tag,
		Symbol:            sym,
		Qty:               t.Qty,
		PnLPct:            t.PnLPct,
		OrderID:           t.OrderID,
		BuyingPowerBefore: models.Float(t.BalanceBefore),
		BuyingPowerAfter:  models.Float(t.BalanceAfter),
		BuyingPowerDelta:  models.Float(t.Delta),
	}
	if t.Price > 0 {
		rec.Price = models.Float(t.Price)
	}
	if t.AvgCostBasis > 0 {
		rec.AvgCostBasis = models.Float(t.AvgCostBasis)
	}

	if l.history.HasOrderID(t.OrderID) {
		l.logEntry().WithField("order_id", t.OrderID).Warn("Сделка уже записана, повтор пропущен.")
		return rec
	}

	pos := l.book.OpenPositions[sym]
	q := math.Max(t.Qty, 0)

	switch t.Side {
	case models.OrderSideBuy:
		pos.USDCost += math.Max(-t.Delta, 0)
		pos.Qty += q
		rec.PositionCostAfterUSD = models.Float(pos.USDCost)

	case models.OrderSideSell:
		frac := 1.0
		if pos.Qty > 0 && q > 0 {
			frac = math.Min(1, q/pos.Qty)
		}
		costUsed := pos.USDCost * frac
		pos.USDCost -= costUsed
		pos.Qty -= q

		realized := math.Max(t.Delta, 0) - costUsed
		l.book.TotalRealizedProfitUSD += realized

		rec.PositionCostUsedUSD = models.Float(costUsed)
		rec.PositionCostAfterUSD = models.Float(pos.USDCost)
		rec.RealizedProfitUSD = models.Float(realized)
	}

	if pos.Qty <= DustQty || pos.USDCost <= DustCost {
		delete(l.book.OpenPositions, sym)
	} else {
		l.book.OpenPositions[sym] = pos
	}
	delete(l.book.PendingOrders, t.OrderID)
	l.save()

	if err := l.history.Append(rec); err != nil {
		l.logEntry().WithError(err).Error("Не удалось дописать историю сделок.")
	}

	fields := logrus.Fields{
		"symbol": sym,
		"side":   t.Side,
		"tag":    t.Tag,
		"qty":    t.Qty,
		"delta":  t.Delta,
	}
	if rec.RealizedProfitUSD != nil {
		fields["realized"] = *rec.RealizedProfitUSD
		fields["total_realized"] = l.book.TotalRealizedProfitUSD
	}
	l.logEntry().WithFields(fields).Info("Сделка записана в леджер.")

	return rec
}

func (l *Ledger) save() {
	l.book.LastUpdatedTS = models.UnixFloat(l.now())
	if err := jsonfile.WriteAtomic(l.path, l.book); err != nil {
		l.logEntry().WithError(err).Error("Не удалось сохранить леджер.")
	}
}

func (l *Ledger) logEntry() *logrus.Entry {
	return l.log.WithComponent("ledger")
}
