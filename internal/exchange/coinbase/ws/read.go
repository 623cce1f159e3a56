package ws

import (
	"context"
	"encoding/json"
	"time"
)

func (w *Client) readLoop() {
	w.logEntry().Debug("readLoop запущен.")

	for {
		if w.stopped() {
			return
		}

		conn := w.currentConn()
		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.stopped() {
				return
			}
			w.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !w.reconnect() {
				return
			}
			continue
		}

		w.handleMessage(data)
	}
}

func (w *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
		return
	}

	switch {
	case msg.Type == "error":
		w.logEntry().WithField("message", msg.Message).Warn("WS вернул ошибку.")
	case msg.Channel == "ticker":
		w.handleTicker(msg)
	default:
	}
}

func (w *Client) reconnect() bool {
	w.logEntry().Info("Попытка переподключения к WS.")
	return w.dial(context.Background(), true)
}

func (w *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > w.reconnectMax {
		return w.reconnectMax
	}
	return next
}
