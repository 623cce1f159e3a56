package status

import (
	"dcatrader/internal/jsonfile"
	"path/filepath"
)

const (
	StatusFileName         = "trader_status.json"
	AccountHistoryFileName = "account_value_history.jsonl"
)

type Account struct {
	TotalAccountValue float64 `json:"total_account_value"`
	BuyingPower       float64 `json:"buying_power"`
	HoldingsSellValue float64 `json:"holdings_sell_value"`
	HoldingsBuyValue  float64 `json:"holdings_buy_value"`
	PercentInTrade    float64 `json:"percent_in_trade"`
	PMStartPctNoDCA   float64 `json:"pm_start_pct_no_dca"`
	PMStartPctWithDCA float64 `json:"pm_start_pct_with_dca"`
	TrailingGapPct    float64 `json:"trailing_gap_pct"`
	RealizedProfitUSD float64 `json:"total_realized_profit_usd"`
}

type Position struct {
	Quantity           float64 `json:"quantity"`
	AvgCostBasis       float64 `json:"avg_cost_basis"`
	CurrentBuyPrice    float64 `json:"current_buy_price"`
	CurrentSellPrice   float64 `json:"current_sell_price"`
	GainLossPctBuy     float64 `json:"gain_loss_pct_buy"`
	GainLossPctSell    float64 `json:"gain_loss_pct_sell"`
	ValueUSD           float64 `json:"value_usd"`
	DCATriggeredStages int     `json:"dca_triggered_stages"`
	NextDCADisplay     string  `json:"next_dca_display"`
	DCALinePrice       float64 `json:"dca_line_price"`
	DCALineSource      string  `json:"dca_line_source"`
	DCALinePct         float64 `json:"dca_line_pct"`
	TrailActive        bool    `json:"trail_active"`
	TrailLine          float64 `json:"trail_line"`
	TrailPeak          float64 `json:"trail_peak"`
	DistToTrailPct     float64 `json:"dist_to_trail_pct"`
}

// Snapshot is the per-tick status document read by the dashboard.
type Snapshot struct {
	Timestamp float64             `json:"timestamp"`
	Account   Account             `json:"account"`
	Positions map[string]Position `json:"positions"`
}

type accountPoint struct {
	TS                float64 `json:"ts"`
	TotalAccountValue float64 `json:"total_account_value"`
}

// Writer persists status snapshots and the account value series under one directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(s Snapshot) error {
	if err := jsonfile.AppendLine(filepath.Join(w.dir, AccountHistoryFileName), accountPoint{
		TS:                s.Timestamp,
		TotalAccountValue: s.Account.TotalAccountValue,
	}); err != nil {
		return err
	}
	return jsonfile.WriteAtomic(filepath.Join(w.dir, StatusFileName), s)
}
