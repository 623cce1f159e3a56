package ledger

import (
	"dcatrader/internal/jsonfile"
	"dcatrader/internal/models"
	"encoding/json"
	"strings"
)

// History is the append-only trade audit trail, one JSON record per line.
type History struct {
	path string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func (h *History) Path() string {
	return h.path
}

func (h *History) Append(rec models.TradeRecord) error {
	return jsonfile.AppendLine(h.path, rec)
}

// Records returns every parseable record in file order. Malformed lines are skipped.
func (h *History) Records() ([]models.TradeRecord, error) {
	lines, err := jsonfile.ReadLines(h.path)
	if err != nil {
		return nil, err
	}
	out := make([]models.TradeRecord, 0, len(lines))
	for _, line := range lines {
		var rec models.TradeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		rec.Symbol = BaseSymbol(rec.Symbol)
		if rec.Symbol == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (h *History) HasOrderID(orderID string) bool {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false
	}
	recs, err := h.Records()
	if err != nil {
		return false
	}
	for _, r := range recs {
		if strings.TrimSpace(r.OrderID) == orderID {
			return true
		}
	}
	return false
}

// BaseSymbol turns "btc-usd" into "BTC".
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
