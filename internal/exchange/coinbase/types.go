package coinbase

import (
	"crypto/ecdsa"
	"dcatrader/internal/logger"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	quoteCurrency = "USD"
	pageLimit     = "250"
)

type Client struct {
	baseURL    string
	host       string
	keyName    string
	key        *ecdsa.PrivateKey
	maxTries   uint
	httpClient *http.Client
	log        *logger.Logger

	now        func() time.Time
	newBackOff func() backoff.BackOff
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type accountsPage struct {
	Accounts []struct {
		UUID             string `json:"uuid"`
		Currency         string `json:"currency"`
		AvailableBalance amount `json:"available_balance"`
		Hold             amount `json:"hold"`
	} `json:"accounts"`
	HasNext bool   `json:"has_next"`
	Cursor  string `json:"cursor"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bestBidAsk struct {
	Pricebooks []struct {
		ProductID string      `json:"product_id"`
		Bids      []bookLevel `json:"bids"`
		Asks      []bookLevel `json:"asks"`
		Time      time.Time   `json:"time"`
	} `json:"pricebooks"`
}

type historicalOrder struct {
	OrderID            string    `json:"order_id"`
	ProductID          string    `json:"product_id"`
	Side               string    `json:"side"`
	Status             string    `json:"status"`
	CreatedTime        time.Time `json:"created_time"`
	FilledSize         string    `json:"filled_size"`
	AverageFilledPrice string    `json:"average_filled_price"`
}

type ordersPage struct {
	Orders  []historicalOrder `json:"orders"`
	HasNext bool              `json:"has_next"`
	Cursor  string            `json:"cursor"`
}

type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type orderConfiguration struct {
	MarketIOC marketIOC `json:"market_market_ioc"`
}

type marketIOC struct {
	QuoteSize string `json:"quote_size,omitempty"`
	BaseSize  string `json:"base_size,omitempty"`
}

type createOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

// apiError is a non-2xx reply from the brokerage API.
type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}
