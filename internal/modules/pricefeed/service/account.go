package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"trigger_bot/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// GetAccountBalances — балансы аккаунта, отфильтрованные по символам.
func (c *Client) GetAccountBalances(ctx context.Context, symbols map[string]struct{}) (map[string]models.Balance, error) {
	var out struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true, &out); err != nil {
		return nil, err
	}

	balances := make(map[string]models.Balance, len(symbols))
	for _, b := range out.Balances {
		if _, ok := symbols[b.Asset]; !ok {
			continue
		}
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		balances[b.Asset] = models.Balance{Free: free, Locked: locked}
	}
	return balances, nil
}

func orderParams(pair models.Pair, side models.Side, quantity float64) url.Values {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	return params
}

// PlaceMarketOrder размещает рыночный ордер. Клиентский id генерим
// сами, чтобы ордер можно было найти в истории биржи.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair models.Pair, side models.Side, quantity float64) (models.OrderResult, error) {
	params := orderParams(pair, side, quantity)
	clientID := uuid.NewString()
	params.Set("newClientOrderId", clientID)

	var out struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &out); err != nil {
		return models.OrderResult{}, errors.Wrapf(err, "place %s %s", side, pair.Symbol())
	}

	executed, _ := strconv.ParseFloat(out.ExecutedQty, 64)
	return models.OrderResult{
		OrderID:       out.OrderID,
		ClientOrderID: clientID,
		Status:        out.Status,
		ExecutedQty:   executed,
	}, nil
}

// ValidateOrder — dry-run проверка ордера перед созданием триггера.
func (c *Client) ValidateOrder(ctx context.Context, pair models.Pair, side models.Side, quantity float64) error {
	if err := c.do(ctx, http.MethodPost, "/api/v3/order/test", orderParams(pair, side, quantity), true, nil); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// GetSymbolTradingRules — фильтры LOT_SIZE и PRICE_FILTER символа.
func (c *Client) GetSymbolTradingRules(ctx context.Context, pair models.Pair) (models.TradingRules, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())

	var out struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				MinQty     string `json:"minQty"`
				MaxQty     string `json:"maxQty"`
				StepSize   string `json:"stepSize"`
				MinPrice   string `json:"minPrice"`
				MaxPrice   string `json:"maxPrice"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &out); err != nil {
		return models.TradingRules{}, err
	}
	if len(out.Symbols) == 0 {
		return models.TradingRules{}, errors.Errorf("symbol %s not found", pair.Symbol())
	}

	var rules models.TradingRules
	parse := func(s string) float64 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	for _, f := range out.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			rules.MinQty = parse(f.MinQty)
			rules.MaxQty = parse(f.MaxQty)
			rules.QtyStep = parse(f.StepSize)
		case "PRICE_FILTER":
			rules.MinPrice = parse(f.MinPrice)
			rules.MaxPrice = parse(f.MaxPrice)
			rules.PriceStep = parse(f.TickSize)
		}
	}
	return rules, nil
}
