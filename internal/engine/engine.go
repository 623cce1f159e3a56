package engine

import (
	"context"
	"dcatrader/internal/config"
	"dcatrader/internal/exchange"
	"dcatrader/internal/ledger"
	"dcatrader/internal/logger"
	"dcatrader/internal/metrics"
	"dcatrader/internal/quotes"
	"dcatrader/internal/signal"
	"dcatrader/internal/status"
	"time"
)

// loopReportEvery is how many ticks pass between progress lines in the log.
const loopReportEvery = 120

// SettingsSource hands out the current trading settings and whether they changed since the last call.
type SettingsSource interface {
	Snapshot() (config.Settings, bool)
}

type Deps struct {
	Gateway   exchange.Gateway
	Signals   signal.Source
	Settings  SettingsSource
	Ledger    *ledger.Ledger
	Quotes    *quotes.Book
	Status    *status.Writer
	SignalLog *status.SignalLog
	Manual    *status.ManualInbox
}

// Engine owns every per-symbol state and is driven from a single goroutine.
type Engine struct {
	cfg         *config.Config
	gw          exchange.Gateway
	signals     signal.Source
	settingsSrc SettingsSource
	ledger      *ledger.Ledger
	book        *quotes.Book
	statusW     *status.Writer
	signalLog   *status.SignalLog
	manual      *status.ManualInbox
	log         *logger.Logger
	now         func() time.Time

	settings   config.Settings
	trailSig   config.TrailSignature
	positions  map[string]*Position
	rate       *RateTracker
	lastGood   *AccountSnapshot
	lastSignal map[string]string
	restored   bool
}

func New(cfg *config.Config, deps Deps, log *logger.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		gw:          deps.Gateway,
		signals:     deps.Signals,
		settingsSrc: deps.Settings,
		ledger:      deps.Ledger,
		book:        deps.Quotes,
		statusW:     deps.Status,
		signalLog:   deps.SignalLog,
		manual:      deps.Manual,
		log:         log,
		now:         time.Now,
		positions:   map[string]*Position{},
		rate:        NewRateTracker(DCAWindow),
		lastSignal:  map[string]string{},
	}
	e.settings, _ = e.settingsSrc.Snapshot()
	e.trailSig = e.settings.TrailSignature()
	return e
}

// Run ticks until ctx is cancelled. A failed tick is logged and retried after the error backoff.
func (e *Engine) Run(ctx context.Context) error {
	e.logEntry().WithField("interval", e.cfg.Runtime.LoopInterval).Info("Движок запущен.")

	for iter := 1; ; iter++ {
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		report, err := e.Tick(ctx)
		metrics.ObserveTick(time.Since(started))

		wait := e.cfg.Runtime.LoopInterval
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncTickError()
			e.logEntry().WithError(err).Error("Ошибка тика, пауза перед повтором.")
			wait = e.cfg.Runtime.ErrorBackoff
		} else if iter == 1 || iter%loopReportEvery == 0 {
			e.logEntry().WithFields(map[string]interface{}{
				"iteration":    iter,
				"total_value":  report.Account.TotalValue,
				"buying_power": report.Account.BuyingPower,
				"positions":    len(e.positions),
				"trades":       len(report.Trades),
			}).Info("Цикл работает.")
		}

		if err := sleepCtx(ctx, wait); err != nil {
			e.logEntry().Info("Движок остановлен.")
			return nil
		}
	}
}

// reloadSettings takes the settings snapshot for this tick. The trail signature is compared on
// every call, so a change seen first by another reader of the store still drops every trail.
func (e *Engine) reloadSettings() {
	next, _ := e.settingsSrc.Snapshot()
	e.settings = next
	sig := next.TrailSignature()
	if sig != e.trailSig {
		e.logEntry().WithFields(map[string]interface{}{
			"gap_pct":        sig.GapPct,
			"start_no_dca":   sig.StartNoDCA,
			"start_with_dca": sig.StartWithDCA,
		}).Info("Параметры трейлинга изменились, линии сброшены.")
		e.trailSig = sig
		e.dropAllTrails()
	}
}
