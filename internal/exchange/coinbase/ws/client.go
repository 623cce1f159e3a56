package ws

import (
	"context"
	"dcatrader/internal/exchange"
	"dcatrader/internal/logger"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// New creates a public ticker feed that pushes best bid/ask into sink.
func New(url string, sink exchange.QuoteSink, log *logger.Logger) *Client {
	return &Client{
		url:          url,
		log:          log,
		sink:         sink,
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

// Run keeps the feed connected until ctx is done. A failed first dial goes through the same
// backoff as a dropped connection, so the feed starts whenever the endpoint comes up.
func (w *Client) Run(ctx context.Context, symbols []string) {
	w.setProducts(symbols)

	go func() {
		<-ctx.Done()
		w.Close()
	}()

	if !w.dial(ctx, false) {
		return
	}
	go w.readLoop()
	<-ctx.Done()
}

// dial connects and subscribes, retrying with backoff until it succeeds or the client is closed.
// With waitFirst the first attempt is delayed too.
func (w *Client) dial(ctx context.Context, waitFirst bool) bool {
	delay := w.reconnectMin
	wait := waitFirst

	for {
		if wait {
			select {
			case <-w.stopCh:
				return false
			case <-time.After(delay):
			}
			delay = w.nextBackoff(delay)
		}
		wait = true
		if w.stopped() {
			return false
		}

		w.logEntry().WithField("url", w.url).Info("Подключение к WS.")
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
		if err != nil {
			w.logEntry().WithError(err).WithField("retry_in", delay).Warn("Не удалось подключиться к WS.")
			continue
		}
		conn.SetReadLimit(2 << 20)
		if !w.setConn(conn) {
			return false
		}

		if err := w.sendSubscriptions(); err != nil {
			w.logEntry().WithError(err).Warn("Не удалось подписаться на WS.")
			continue
		}

		w.logEntry().Info("WS соединение установлено, подписки отправлены.")
		return true
	}
}

func (w *Client) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
	})
}

// setConn swaps in a fresh connection. It refuses once the client is closed.
func (w *Client) setConn(conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped() {
		_ = conn.Close()
		return false
	}
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	return true
}

func (w *Client) currentConn() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *Client) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Client) logEntry() *logrus.Entry {
	return w.log.WithComponent("coinbase_ws")
}
