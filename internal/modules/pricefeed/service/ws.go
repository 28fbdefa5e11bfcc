package service

import (
	"context"
	"time"

	"trigger_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

// StartPriceStream держит соединение с общим miniTicker-стримом и
// обновляет кэш последних цен. Кэш нужен только для быстрых ответов
// /price; тики воркера всегда ходят в REST за консистентным снапшотом.
func (c *Client) StartPriceStream(ctx context.Context) {
	url := c.wsURL + "/!miniTicker@arr"
	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := c.wsDialer.DialContext(ctx, url, nil)
		if err != nil {
			retry++
			if retry > 8 {
				logger.Error("price stream: giving up after %d dials: %v", retry, err)
				return
			}
			time.Sleep(time.Duration(300*retry) * time.Millisecond)
			continue
		}
		retry = 0
		logger.Info("price stream connected")

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				logger.Error("price stream read: %v", err)
				break
			}
			var frame []struct {
				Symbol string `json:"s"`
				Close  string `json:"c"`
			}
			if err := sonic.Unmarshal(msg, &frame); err != nil {
				continue
			}
			c.cacheMu.Lock()
			for _, t := range frame {
				if p, err := parsePrice(t.Close); err == nil && p > 0 {
					c.lastPrice[t.Symbol] = p
				}
			}
			c.cacheMu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(1 * time.Second)
		}
	}
}

// CachedPrice — последняя известная цена символа из WS-кэша.
func (c *Client) CachedPrice(symbol string) (float64, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	p, ok := c.lastPrice[symbol]
	return p, ok
}
