package ws

import (
	"dcatrader/internal/exchange"
	"dcatrader/internal/logger"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	url          string
	log          *logger.Logger
	sink         exchange.QuoteSink
	mu           sync.Mutex
	conn         *websocket.Conn
	stopCh       chan struct{}
	stopOnce     sync.Once
	productIDs   []string
	reconnectMin time.Duration
	reconnectMax time.Duration
}

type Message struct {
	Channel     string          `json:"channel"`
	Timestamp   string          `json:"timestamp"`
	SequenceNum int64           `json:"sequence_num"`
	Events      json.RawMessage `json:"events"`
	Type        string          `json:"type"`
	Message     string          `json:"message"`
}

type tickerEvent struct {
	Type    string `json:"type"`
	Tickers []struct {
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
		BestBid   string `json:"best_bid"`
		BestAsk   string `json:"best_ask"`
	} `json:"tickers"`
}

type SubscribeMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Channel    string   `json:"channel"`
}
