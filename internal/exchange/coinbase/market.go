package coinbase

import (
	"context"
	"dcatrader/internal/models"
	"net/url"
)

// GetBestBidAsk fetches top of book for all symbols in one call. Symbols the venue
// does not return, or returns with an empty side, are absent from the result.
func (c *Client) GetBestBidAsk(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	quotes := map[string]models.Quote{}
	if len(symbols) == 0 {
		return quotes, nil
	}

	params := url.Values{}
	for _, s := range symbols {
		params.Add("product_ids", productID(s))
	}

	var resp bestBidAsk
	if err := c.get(ctx, "/api/v3/brokerage/best_bid_ask", params, &resp); err != nil {
		return nil, err
	}

	for _, book := range resp.Pricebooks {
		if len(book.Bids) == 0 || len(book.Asks) == 0 {
			continue
		}
		q := models.Quote{
			Bid: parseFloatOrZero(book.Bids[0].Price),
			Ask: parseFloatOrZero(book.Asks[0].Price),
			At:  book.Time,
		}
		if q.At.IsZero() {
			q.At = c.now()
		}
		if !q.Valid() {
			continue
		}
		quotes[baseOf(book.ProductID)] = q
	}
	return quotes, nil
}
