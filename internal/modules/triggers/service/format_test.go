package service

import (
	"strings"
	"testing"

	"trigger_bot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatScientific(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1.0, "1.00"},
		{12.345, "12.35"},
		{0.00000215, "2.15e-6"},
		{0.0215, "21.50e-3"},
		{1234.5, "1.23e3"},
		{2500000, "2.50e6"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatScientific(c.in), "value %v", c.in)
	}
}

func TestFormatScientificExpPinned(t *testing.T) {
	// порог и цена печатаются в одном порядке, чтобы их можно было
	// сравнить глазами
	exp := findExp(0.0000215)
	assert.Equal(t, -6, exp)
	assert.Equal(t, "21.50e-6", formatScientificExp(0.0000215, exp))
	assert.Equal(t, "20.00e-6", formatScientificExp(0.00002, exp))
}

func TestBuildStatusMsg(t *testing.T) {
	triggers := []models.Trigger{
		{ID: 2, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindSellAbove, Quantity: 1, Threshold: 0.3},
		{ID: 1, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindBuyBelow, Quantity: 1, Threshold: 0.2},
		{ID: 3, Pair: models.NewPair("ETH", "BTC"), Kind: models.KindAlertAbove, Threshold: 0.08},
	}
	prices := map[string]float64{"LTCBTC": 0.25, "ETHBTC": 0.07}
	balances := map[string]models.Balance{
		"LTC": {Free: 2, Locked: 1},
		"BTC": {Free: 0.5},
	}

	msg := buildStatusMsg(triggers, prices, balances, false)

	assert.Contains(t, msg, "Status:")
	assert.Contains(t, msg, "LTCBTC:")
	assert.Contains(t, msg, "ETHBTC:")
	assert.Contains(t, msg, "(id=1)")
	assert.Contains(t, msg, "Prices:")
	assert.Contains(t, msg, "Balances:")
	assert.Contains(t, msg, "LTC: 3.00") // free + locked

	// внутри пары порядок по порогу, BUY раньше SELL
	idxBuy := strings.Index(msg, "BUY_BELOW_AT_MARKET")
	idxSell := strings.Index(msg, "SELL_ABOVE_AT_MARKET")
	assert.True(t, idxBuy < idxSell)
}

func TestFormatTriggersRepr(t *testing.T) {
	triggers := []models.Trigger{
		{ID: 1, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindAlertBelow, Threshold: 0.2},
	}
	out := formatTriggers(triggers, true, nil)
	assert.Contains(t, out, "ID:1")
	assert.Contains(t, out, "ALERT_BELOW")
}
