package quotes

import (
	"dcatrader/internal/models"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Book keeps the last valid bid/ask per symbol for a bounded time.
type Book struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func New(ttl time.Duration) (*Book, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("Не удалось создать кэш котировок: %w", err)
	}
	return &Book{c: c, ttl: ttl}, nil
}

// Put stores q if it is usable. Writes are visible to Get on return.
func (b *Book) Put(symbol string, q models.Quote) {
	if !q.Valid() {
		return
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}
	b.c.SetWithTTL(symbol, q, 1, b.ttl)
	b.c.Wait()
}

func (b *Book) Get(symbol string) (models.Quote, bool) {
	v, ok := b.c.Get(symbol)
	if !ok {
		return models.Quote{}, false
	}
	q, ok := v.(models.Quote)
	return q, ok
}

// Merge fills symbols missing from fresh with cached quotes and caches the fresh ones.
func (b *Book) Merge(symbols []string, fresh map[string]models.Quote) map[string]models.Quote {
	out := make(map[string]models.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := fresh[sym]; ok && q.Valid() {
			b.Put(sym, q)
			out[sym] = q
			continue
		}
		if q, ok := b.Get(sym); ok {
			out[sym] = q
		}
	}
	return out
}

func (b *Book) Close() {
	b.c.Close()
}
