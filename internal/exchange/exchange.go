package exchange

import (
	"context"
	"dcatrader/internal/models"
	"errors"
)

var (
	ErrOrderRejected = errors.New("ордер отклонён биржей")
	ErrNoQuote       = errors.New("нет котировки")
)

// Gateway is the venue surface the engine trades through. Symbols are base assets ("BTC").
type Gateway interface {
	GetBalance(ctx context.Context) (float64, error)
	GetHoldings(ctx context.Context) ([]models.Holding, error)
	GetBestBidAsk(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	ListOrders(ctx context.Context, symbol string) ([]models.Order, error)
	MarketBuy(ctx context.Context, symbol string, usd float64) (string, error)
	MarketSell(ctx context.Context, symbol string, qty float64) (string, error)
}

// QuoteSink receives streamed best bid/ask updates.
type QuoteSink interface {
	Put(symbol string, q models.Quote)
}
