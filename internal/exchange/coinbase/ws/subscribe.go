package ws

import (
	"fmt"
	"strings"
)

func (w *Client) setProducts(symbols []string) {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		ids = append(ids, strings.ToUpper(s)+"-USD")
	}

	w.mu.Lock()
	w.productIDs = ids
	w.mu.Unlock()
}

// sendSubscriptions asks for ticker updates plus heartbeats, which keep the connection
// from being dropped on quiet products.
func (w *Client) sendSubscriptions() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("WS не подключён")
	}
	if len(w.productIDs) == 0 {
		return nil
	}

	msgs := []SubscribeMessage{
		{Type: "subscribe", ProductIDs: w.productIDs, Channel: "ticker"},
		{Type: "subscribe", Channel: "heartbeats"},
	}
	for _, msg := range msgs {
		if err := w.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("Не удалось подписаться на %s: %w", msg.Channel, err)
		}
	}
	return nil
}
