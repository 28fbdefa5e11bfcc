package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"trigger_bot/internal/models"
	"trigger_bot/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client — REST/WS клиент биржи. Ключи задаются позже, через /start.
type Client struct {
	httpc    *http.Client
	baseURL  string
	wsURL    string
	ccURL    string
	wsDialer *websocket.Dialer

	credsMu   sync.RWMutex
	apiKey    string
	apiSecret string

	cacheMu   sync.RWMutex
	lastPrice map[string]float64
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpc:     &http.Client{Timeout: 15 * time.Second},
		baseURL:   cfg.Binance.BaseURL,
		wsURL:     cfg.Binance.WSURL,
		ccURL:     cfg.CryptoCompareURL,
		wsDialer:  &websocket.Dialer{},
		lastPrice: make(map[string]float64),
	}
}

func (c *Client) SetCreds(key, secret string) {
	c.credsMu.Lock()
	c.apiKey, c.apiSecret = key, secret
	c.credsMu.Unlock()
}

func (c *Client) creds() (string, string) {
	c.credsMu.RLock()
	defer c.credsMu.RUnlock()
	return c.apiKey, c.apiSecret
}

func (c *Client) sign(secret, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do выполняет запрос к REST API. Для signed-запросов параметры
// дополняются timestamp и подписью HMAC-SHA256.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}

	var apiKey string
	query := params.Encode()
	if signed {
		key, secret := c.creds()
		if key == "" || secret == "" {
			return errors.New("api credentials are not set, use /start")
		}
		apiKey = key
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		query = params.Encode()
		query += "&signature=" + c.sign(secret, query)
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Msg: string(body)}
		var e struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := sonic.Unmarshal(body, &e); err == nil && e.Msg != "" {
			apiErr.Code = e.Code
			apiErr.Msg = e.Msg
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// GetServerTime — серверное время биржи.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/time", nil, false, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ServerTime), nil
}

// GetAllTickerPrices — текущие цены всех тикеров одним запросом.
func (c *Client) GetAllTickerPrices(ctx context.Context) (map[string]float64, error) {
	var out []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", nil, false, &out); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(out))
	for _, t := range out {
		if t.Symbol == "" {
			continue
		}
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		prices[t.Symbol] = p
	}

	c.cacheMu.Lock()
	for s, p := range prices {
		c.lastPrice[s] = p
	}
	c.cacheMu.Unlock()

	return prices, nil
}

// GetRecentTradePrices — цены агрегированных сделок за окно
// [start, end]. Пустой срез — в окне не было сделок.
func (c *Client) GetRecentTradePrices(ctx context.Context, pair models.Pair, start, end time.Time) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))

	var out []struct {
		Price string `json:"p"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/aggTrades", params, false, &out); err != nil {
		return nil, err
	}

	prices := make([]float64, 0, len(out))
	for _, t := range out {
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	return prices, nil
}
