package coinbase

import (
	"context"
	"dcatrader/internal/exchange"
	"dcatrader/internal/models"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ListOrders returns every filled order for symbol, each collapsed to a single
// fill at its average price.
func (c *Client) ListOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	var orders []models.Order
	cursor := ""
	for {
		params := url.Values{}
		params.Set("product_ids", productID(symbol))
		params.Set("order_status", "FILLED")
		params.Set("limit", pageLimit)
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page ordersPage
		if err := c.get(ctx, "/api/v3/brokerage/orders/historical/batch", params, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Orders {
			orders = append(orders, toOrder(symbol, item))
		}

		if !page.HasNext || page.Cursor == "" || page.Cursor == cursor {
			return orders, nil
		}
		cursor = page.Cursor
	}
}

func toOrder(symbol string, item historicalOrder) models.Order {
	o := models.Order{
		ID:        item.OrderID,
		Symbol:    strings.ToUpper(symbol),
		Side:      models.OrderSide(strings.ToLower(item.Side)),
		CreatedAt: item.CreatedTime,
	}

	switch strings.ToUpper(item.Status) {
	case "FILLED":
		o.State = models.OrderStateFilled
	case "OPEN", "PENDING", "QUEUED":
		o.State = models.OrderStateOpen
	case "CANCELLED", "EXPIRED":
		o.State = models.OrderStateCanceled
	default:
		o.State = models.OrderStateFailed
	}

	qty := parseFloatOrZero(item.FilledSize)
	price := parseFloatOrZero(item.AverageFilledPrice)
	if qty > 0 && price > 0 {
		o.Fills = []models.Fill{{Qty: qty, Price: price}}
	}
	return o
}

// MarketBuy spends usd of quote currency on symbol.
func (c *Client) MarketBuy(ctx context.Context, symbol string, usd float64) (string, error) {
	return c.placeOrder(ctx, symbol, "BUY", marketIOC{QuoteSize: formatQuoteSize(usd)})
}

// MarketSell sells qty of symbol.
func (c *Client) MarketSell(ctx context.Context, symbol string, qty float64) (string, error) {
	return c.placeOrder(ctx, symbol, "SELL", marketIOC{BaseSize: formatBaseSize(qty)})
}

// Orders are never retried: a lost response may still have executed.
func (c *Client) placeOrder(ctx context.Context, symbol, side string, cfg marketIOC) (string, error) {
	body := createOrderRequest{
		ClientOrderID:      uuid.NewString(),
		ProductID:          productID(symbol),
		Side:               side,
		OrderConfiguration: orderConfiguration{MarketIOC: cfg},
	}

	entry := c.logEntry().WithFields(logrus.Fields{
		"symbol":          symbol,
		"side":            side,
		"client_order_id": body.ClientOrderID,
		"quote_size":      cfg.QuoteSize,
		"base_size":       cfg.BaseSize,
	})

	var resp createOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/brokerage/orders", nil, body, &resp); err != nil {
		entry.WithError(err).Warn("Не удалось отправить ордер.")
		return "", unwrapPermanent(err)
	}

	if !resp.Success || resp.SuccessResponse.OrderID == "" {
		reason := resp.ErrorResponse.Message
		if reason == "" {
			reason = resp.ErrorResponse.PreviewFailureReason
		}
		if reason == "" {
			reason = resp.ErrorResponse.Error
		}
		entry.WithField("reason", reason).Warn("Ордер отклонён.")
		return "", fmt.Errorf("%w: %s", exchange.ErrOrderRejected, reason)
	}

	entry.WithField("order_id", resp.SuccessResponse.OrderID).Info("Ордер размещён.")
	return resp.SuccessResponse.OrderID, nil
}
