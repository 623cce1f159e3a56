package coinbase

import (
	"context"
	"dcatrader/internal/models"
	"net/url"
	"strings"
)

func (c *Client) listAccounts(ctx context.Context) (accountsPage, error) {
	var all accountsPage
	cursor := ""
	for {
		params := url.Values{}
		params.Set("limit", pageLimit)
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page accountsPage
		if err := c.get(ctx, "/api/v3/brokerage/accounts", params, &page); err != nil {
			return accountsPage{}, err
		}
		all.Accounts = append(all.Accounts, page.Accounts...)

		if !page.HasNext || page.Cursor == "" || page.Cursor == cursor {
			return all, nil
		}
		cursor = page.Cursor
	}
}

// GetBalance returns spendable USD.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	page, err := c.listAccounts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, acc := range page.Accounts {
		if strings.EqualFold(acc.Currency, quoteCurrency) {
			total += parseFloatOrZero(acc.AvailableBalance.Value)
		}
	}
	return total, nil
}

// GetHoldings returns non-zero available crypto balances. Quantity on hold is locked by the
// venue and cannot be sold, so it is left out. USD and USDC are cash, not positions.
func (c *Client) GetHoldings(ctx context.Context) ([]models.Holding, error) {
	page, err := c.listAccounts(ctx)
	if err != nil {
		return nil, err
	}

	byCoin := map[string]float64{}
	var order []string
	for _, acc := range page.Accounts {
		coin := strings.ToUpper(acc.Currency)
		if coin == "" || coin == quoteCurrency || coin == "USDC" {
			continue
		}
		qty := parseFloatOrZero(acc.AvailableBalance.Value)
		if qty <= 0 {
			continue
		}
		if _, ok := byCoin[coin]; !ok {
			order = append(order, coin)
		}
		byCoin[coin] += qty
	}

	holdings := make([]models.Holding, 0, len(order))
	for _, coin := range order {
		holdings = append(holdings, models.Holding{Symbol: coin, Qty: byCoin[coin]})
	}
	return holdings, nil
}
