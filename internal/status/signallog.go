package status

import (
	"dcatrader/internal/jsonfile"
	"path/filepath"
	"strings"
	"time"
)

const (
	SignalLogFileName = "signal_log.jsonl"
	SignalLogMaxLines = 500
)

type Action string

const (
	ActionHold      Action = "HOLD"
	ActionDCA       Action = "DCA"
	ActionDCASkip   Action = "DCA_SKIP"
	ActionEntry     Action = "ENTRY"
	ActionSkip      Action = "SKIP"
	ActionTrailSell Action = "TRAIL_SELL"
)

type SignalEntry struct {
	TS         float64        `json:"ts"`
	Time       string         `json:"time"`
	Symbol     string         `json:"symbol"`
	Action     Action         `json:"action"`
	Reason     string         `json:"reason"`
	LongLevel  int            `json:"long_level"`
	ShortLevel int            `json:"short_level"`
	Details    map[string]any `json:"details,omitempty"`
}

// SignalLog is the decision log shown next to the chart. It is trimmed to the last
// SignalLogMaxLines entries once per tick.
type SignalLog struct {
	path     string
	maxLines int
	now      func() time.Time
}

func NewSignalLog(dir string) *SignalLog {
	return &SignalLog{
		path:     filepath.Join(dir, SignalLogFileName),
		maxLines: SignalLogMaxLines,
		now:      time.Now,
	}
}

func (l *SignalLog) Log(e SignalEntry) error {
	now := l.now()
	e.TS = float64(now.UnixNano()) / 1e9
	e.Time = now.Format("15:04:05")
	e.Symbol = strings.ToUpper(e.Symbol)
	return jsonfile.AppendLine(l.path, e)
}

func (l *SignalLog) Rotate() error {
	return jsonfile.TruncateLines(l.path, l.maxLines)
}
