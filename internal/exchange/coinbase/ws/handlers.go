package ws

import (
	"dcatrader/internal/models"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

func (w *Client) handleTicker(msg Message) {
	var events []tickerEvent
	if err := json.Unmarshal(msg.Events, &events); err != nil {
		w.logEntry().WithError(err).Warn("Не удалось разобрать ticker.")
		return
	}

	at, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	if err != nil {
		at = time.Now()
	}

	for _, ev := range events {
		for _, item := range ev.Tickers {
			bid, _ := strconv.ParseFloat(item.BestBid, 64)
			ask, _ := strconv.ParseFloat(item.BestAsk, 64)

			q := models.Quote{Bid: bid, Ask: ask, At: at}
			if !q.Valid() {
				continue
			}
			w.sink.Put(strings.TrimSuffix(strings.ToUpper(item.ProductID), "-USD"), q)
		}
	}
}
