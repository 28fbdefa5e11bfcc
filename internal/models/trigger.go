package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Kind — закрытый набор типов триггеров. Новый тип добавляется здесь
// и в evaluator (switch без default по ордерам/алертам).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBuyBelow
	KindSellAbove
	KindSellBelow
	KindTrailingStopLoss
	KindAlertAbove
	KindAlertBelow
)

// Имена в протоколе команд и в хранилище. Длинные варианты остались
// от старого формата /trade, принимаем оба.
var kindNames = map[Kind]string{
	KindBuyBelow:         "BUY_BELOW_AT_MARKET",
	KindSellAbove:        "SELL_ABOVE_AT_MARKET",
	KindSellBelow:        "SELL_BELOW_AT_MARKET",
	KindTrailingStopLoss: "TRAILING_STOP_LOSS",
	KindAlertAbove:       "ALERT_ABOVE",
	KindAlertBelow:       "ALERT_BELOW",
}

var kindAliases = map[string]Kind{
	"BUY_BELOW_AT_MARKET":  KindBuyBelow,
	"BUY_BELOW":            KindBuyBelow,
	"SELL_ABOVE_AT_MARKET": KindSellAbove,
	"SELL_ABOVE":           KindSellAbove,
	"SELL_BELOW_AT_MARKET": KindSellBelow,
	"SELL_BELOW":           KindSellBelow,
	"TRAILING_STOP_LOSS":   KindTrailingStopLoss,
	"TRAILING_STOP":        KindTrailingStopLoss,
	"ALERT_ABOVE":          KindAlertAbove,
	"ALERT_BELOW":          KindAlertBelow,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// IsOrder — триггер с ордером (есть quantity), иначе алерт.
func (k Kind) IsOrder() bool {
	switch k {
	case KindBuyBelow, KindSellAbove, KindSellBelow, KindTrailingStopLoss:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return KindUnknown, errors.Errorf("unknown trigger kind %q", s)
	}
	return k, nil
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(k.String())
}

// UnmarshalJSON не падает на незнакомом имени: битая запись должна
// дожить до evaluator-а и превратиться в warning, а не потеряться.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, ok := kindAliases[strings.ToUpper(s)]; ok {
		*k = parsed
	} else {
		*k = KindUnknown
	}
	return nil
}

// Pair — рынок (base, quote), например (LTC, BTC).
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func NewPair(base, quote string) Pair {
	return Pair{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
}

// Symbol — конкатенация, как её понимает биржа: LTCBTC.
func (p Pair) Symbol() string { return p.Base + p.Quote }

func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return errors.New("pair: empty symbol")
	}
	if p.Base == p.Quote {
		return errors.Errorf("pair: base and quote are the same (%s)", p.Base)
	}
	return nil
}

// Trigger — условный ордер или алерт, ждущий своей цены.
// После записи в хранилище не мутируется: только создание и удаление.
type Trigger struct {
	ID        int64   `json:"id"`
	Pair      Pair    `json:"pair"`
	Kind      Kind    `json:"type"`
	Quantity  float64 `json:"quantity,omitempty"`
	Threshold float64 `json:"threshold"`
	Delta     float64 `json:"delta,omitempty"` // только для TRAILING_STOP_LOSS
}

func (t Trigger) Validate() error {
	if t.ID < 0 {
		return errors.Errorf("trigger %d: negative id", t.ID)
	}
	if err := t.Pair.Validate(); err != nil {
		return errors.Wrapf(err, "trigger %d", t.ID)
	}
	if t.Threshold <= 0 || math.IsInf(t.Threshold, 0) || math.IsNaN(t.Threshold) {
		return errors.Errorf("trigger %d: bad threshold %v", t.ID, t.Threshold)
	}
	if t.Kind.IsOrder() {
		if t.Quantity <= 0 {
			return errors.Errorf("trigger %d: order needs quantity > 0", t.ID)
		}
	} else if t.Quantity != 0 {
		return errors.Errorf("trigger %d: alert must not carry quantity", t.ID)
	}
	if t.Kind == KindTrailingStopLoss && (t.Delta <= 0 || t.Delta >= 1) {
		return errors.Errorf("trigger %d: delta must be in (0,1)", t.ID)
	}
	return nil
}

// Side ордера на бирже.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Balance — свободный и залоченный остаток по символу.
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

func (b Balance) Total() float64 { return b.Free + b.Locked }

// TradingRules — фильтры символа: границы лота и цены.
type TradingRules struct {
	MinQty    float64
	MaxQty    float64
	QtyStep   float64
	MinPrice  float64
	MaxPrice  float64
	PriceStep float64
}

// OrderResult — ответ биржи на размещение рыночного ордера.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Status        string
	ExecutedQty   float64
}
