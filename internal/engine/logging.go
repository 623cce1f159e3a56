package engine

import (
	"dcatrader/internal/metrics"
	"dcatrader/internal/status"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

func (e *Engine) logEntry() *logrus.Entry {
	return e.log.WithComponent("engine")
}

func (e *Engine) symbolEntry(sym string) *logrus.Entry {
	return e.logEntry().WithField("symbol", sym)
}

// logDecision writes d to the signal log. Repeated non-trading outcomes for a symbol are
// written once until the outcome changes; trades are always written.
func (e *Engine) logDecision(d Decision, details map[string]any) {
	metrics.IncDecision(string(d.Action))

	key := string(d.Action) + "/" + d.Kind
	switch d.Action {
	case status.ActionHold, status.ActionSkip, status.ActionDCASkip:
		if e.lastSignal[d.Symbol] == key {
			return
		}
	}
	e.lastSignal[d.Symbol] = key

	err := e.signalLog.Log(status.SignalEntry{
		Symbol:     d.Symbol,
		Action:     d.Action,
		Reason:     d.Reason,
		LongLevel:  d.Levels.Long,
		ShortLevel: d.Levels.Short,
		Details:    details,
	})
	if err != nil {
		e.symbolEntry(d.Symbol).WithError(err).Warn("Не удалось записать сигнал в журнал.")
	}

	e.symbolEntry(d.Symbol).WithFields(map[string]interface{}{
		"action": d.Action,
		"reason": d.Reason,
		"long":   d.Levels.Long,
		"short":  d.Levels.Short,
	}).Debug("Решение.")
}

func formatFloatPlain(val float64) string {
	formatted := strconv.FormatFloat(val, 'f', 12, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	if formatted == "" || formatted == "-0" {
		return "0"
	}
	return formatted
}
