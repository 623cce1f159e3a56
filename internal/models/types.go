package models

import "time"

type OrderSide string
type OrderState string
type Tag string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderStateFilled   OrderState = "filled"
	OrderStateOpen     OrderState = "open"
	OrderStateCanceled OrderState = "canceled"
	OrderStateFailed   OrderState = "failed"

	TagEntry      Tag = "ENTRY"
	TagDCA        Tag = "DCA"
	TagTrailSell  Tag = "TRAIL_SELL"
	TagManualBuy  Tag = "MANUAL_BUY"
	TagManualSell Tag = "MANUAL_SELL"
)

type Fill struct {
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
}

// Order is a historical order as reported by the venue, oldest fills first.
type Order struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Side      OrderSide  `json:"side"`
	State     OrderState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	Fills     []Fill     `json:"fills"`
}

func (o Order) IsFilled() bool {
	return o.State == OrderStateFilled
}

type Holding struct {
	Symbol string  `json:"symbol"`
	Qty    float64 `json:"qty"`
}

// Quote holds best bid/ask. Ask is the buy price, Bid is the sell price.
type Quote struct {
	Bid float64   `json:"bid"`
	Ask float64   `json:"ask"`
	At  time.Time `json:"ts"`
}

func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

type TradeRecord struct {
	TS                   float64   `json:"ts"`
	Side                 OrderSide `json:"side"`
	Tag                  Tag       `json:"tag,omitempty"`
	Symbol               string    `json:"symbol"`
	Qty                  float64   `json:"qty"`
	Price                *float64  `json:"price"`
	AvgCostBasis         *float64  `json:"avg_cost_basis"`
	PnLPct               *float64  `json:"pnl_pct"`
	FeesUSD              *float64  `json:"fees_usd"`
	RealizedProfitUSD    *float64  `json:"realized_profit_usd"`
	OrderID              string    `json:"order_id"`
	BuyingPowerBefore    *float64  `json:"buying_power_before"`
	BuyingPowerAfter     *float64  `json:"buying_power_after"`
	BuyingPowerDelta     *float64  `json:"buying_power_delta"`
	PositionCostUsedUSD  *float64  `json:"position_cost_used_usd"`
	PositionCostAfterUSD *float64  `json:"position_cost_after_usd"`
}

func (r TradeRecord) Time() time.Time {
	sec := int64(r.TS)
	nsec := int64((r.TS - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func Float(v float64) *float64 {
	return &v
}

func UnixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
