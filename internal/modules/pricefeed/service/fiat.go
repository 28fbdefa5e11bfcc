package service

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// GetFiatPrice — цена через CryptoCompare для котировок, которых нет
// на бирже (например LTC/USD). Источник котировки задаётся биржей e.
func (c *Client) GetFiatPrice(ctx context.Context, fsym, tsym, exchange string) (float64, error) {
	params := url.Values{}
	params.Set("fsym", fsym)
	params.Set("tsyms", tsym)
	if exchange != "" {
		params.Set("e", exchange)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ccURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "cryptocompare")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("cryptocompare: invalid status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "read body")
	}

	var out map[string]any
	if err := sonic.Unmarshal(body, &out); err != nil {
		return 0, errors.Wrap(err, "decode cryptocompare response")
	}
	if r, ok := out["Response"].(string); ok && r == "Error" {
		msg, _ := out["Message"].(string)
		return 0, errors.Errorf("cryptocompare: %s", msg)
	}
	price, ok := out[tsym].(float64)
	if !ok {
		return 0, errors.Errorf("cryptocompare: no %s price in response", tsym)
	}
	return price, nil
}
