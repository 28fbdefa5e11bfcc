package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"trigger_bot/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placedOrder struct {
	pair models.Pair
	side models.Side
	qty  float64
}

// fakeFeed — управляемая биржа для тестов менеджера.
type fakeFeed struct {
	prices       map[string]float64
	recent       map[string][]float64
	balances     map[string]models.Balance
	rules        models.TradingRules
	validateErr  error
	orderErr     error
	placedOrders []placedOrder
}

func (f *fakeFeed) GetAllTickerPrices(context.Context) (map[string]float64, error) {
	return f.prices, nil
}

func (f *fakeFeed) GetRecentTradePrices(_ context.Context, pair models.Pair, _, _ time.Time) ([]float64, error) {
	return f.recent[pair.Symbol()], nil
}

func (f *fakeFeed) GetAccountBalances(context.Context, map[string]struct{}) (map[string]models.Balance, error) {
	return f.balances, nil
}

func (f *fakeFeed) GetServerTime(context.Context) (time.Time, error) {
	return time.Unix(1700000000, 0), nil
}

func (f *fakeFeed) PlaceMarketOrder(_ context.Context, pair models.Pair, side models.Side, qty float64) (models.OrderResult, error) {
	if f.orderErr != nil {
		return models.OrderResult{}, f.orderErr
	}
	f.placedOrders = append(f.placedOrders, placedOrder{pair: pair, side: side, qty: qty})
	return models.OrderResult{OrderID: int64(len(f.placedOrders)), Status: "FILLED", ExecutedQty: qty}, nil
}

func (f *fakeFeed) ValidateOrder(context.Context, models.Pair, models.Side, float64) error {
	return f.validateErr
}

func (f *fakeFeed) GetSymbolTradingRules(context.Context, models.Pair) (models.TradingRules, error) {
	return f.rules, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) Sendf(format string, args ...any) { n.Send(fmt.Sprintf(format, args...)) }

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}

func newTestManager(feed *fakeFeed) (*Manager, *MemoryStore, *fakeNotifier) {
	store := NewMemoryStore()
	settings := NewMemorySettings()
	n := &fakeNotifier{}
	eval := NewEvaluator(feed, 30*time.Second, 0)
	return NewManager(store, settings, feed, n, eval), store, n
}

func TestCreateTriggersAssignsSequentialIDs(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"LTCBTC": 0.25}}
	m, store, _ := newTestManager(feed)
	ctx := context.Background()
	pair := models.NewPair("LTC", "BTC")

	created, err := m.CreateTriggers(ctx, pair, []TriggerSpec{
		{Quantity: 1, Kind: models.KindBuyBelow, Value: 0.2},
		{Quantity: 2, Kind: models.KindSellAbove, Value: 0.3},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.EqualValues(t, 0, created[0].ID)
	assert.EqualValues(t, 1, created[1].ID)

	// счётчик сквозной: после удаления id не переиспользуется
	_, err = m.Remove(ctx, "0")
	require.NoError(t, err)
	alert, err := m.CreateAlert(ctx, pair, 0.5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, alert.ID)

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateTriggersRejectedByDryRun(t *testing.T) {
	feed := &fakeFeed{
		prices:      map[string]float64{"LTCBTC": 0.25},
		validateErr: errors.New("MIN_NOTIONAL"),
	}
	m, store, _ := newTestManager(feed)

	_, err := m.CreateTriggers(context.Background(), models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 1, Kind: models.KindBuyBelow, Value: 0.2},
	})
	require.Error(t, err)

	all, err := store.Iterate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateTriggersBelowMinLot(t *testing.T) {
	feed := &fakeFeed{
		prices: map[string]float64{"LTCBTC": 0.25},
		rules:  models.TradingRules{MinQty: 0.5},
	}
	m, _, _ := newTestManager(feed)

	_, err := m.CreateTriggers(context.Background(), models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 0.1, Kind: models.KindSellAbove, Value: 0.3},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum lot")
}

func TestCreateTrailingStopFixesThreshold(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"LTCBTC": 0.2}}
	m, _, _ := newTestManager(feed)

	created, err := m.CreateTriggers(context.Background(), models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 1, Kind: models.KindTrailingStopLoss, Value: 0.1},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.InDelta(t, 0.18, created[0].Threshold, 1e-12)
	assert.Equal(t, 0.1, created[0].Delta)
}

func TestCreateAlertPicksDirection(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"LTCBTC": 0.2}}
	m, _, _ := newTestManager(feed)
	ctx := context.Background()
	pair := models.NewPair("LTC", "BTC")

	above, err := m.CreateAlert(ctx, pair, 0.3)
	require.NoError(t, err)
	assert.Equal(t, models.KindAlertAbove, above.Kind)

	below, err := m.CreateAlert(ctx, pair, 0.1)
	require.NoError(t, err)
	assert.Equal(t, models.KindAlertBelow, below.Kind)
}

func TestCreateAlertUnknownMarket(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{}}
	m, _, _ := newTestManager(feed)

	_, err := m.CreateAlert(context.Background(), models.NewPair("XYZ", "BTC"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no market XYZBTC")
}

func TestRemoveByPair(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"LTCBTC": 0.25, "ETHBTC": 0.07}}
	m, store, _ := newTestManager(feed)
	ctx := context.Background()

	_, err := m.CreateAlert(ctx, models.NewPair("LTC", "BTC"), 0.5)
	require.NoError(t, err)
	_, err = m.CreateAlert(ctx, models.NewPair("LTC", "BTC"), 0.6)
	require.NoError(t, err)
	kept, err := m.CreateAlert(ctx, models.NewPair("ETH", "BTC"), 0.5)
	require.NoError(t, err)

	removed, err := m.Remove(ctx, "LTCBTC")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kept.ID, all[0].ID)
}

func TestStatusIncludesCreatedTrigger(t *testing.T) {
	feed := &fakeFeed{
		prices:   map[string]float64{"LTCBTC": 0.25},
		balances: map[string]models.Balance{"LTC": {Free: 2}, "BTC": {Free: 0.5}},
	}
	m, _, _ := newTestManager(feed)
	ctx := context.Background()

	created, err := m.CreateTriggers(ctx, models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 1, Kind: models.KindBuyBelow, Value: 0.2},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	text, err := m.Status(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, text, "LTCBTC:")
	assert.Contains(t, text, fmt.Sprintf("(id=%d)", created[0].ID))
	// триггер в отчёте ровно один раз
	assert.Equal(t, 1, strings.Count(text, "(id="))
}

func TestRunTickFiresBuyAndDeletes(t *testing.T) {
	feed := &fakeFeed{
		prices:   map[string]float64{"LTCBTC": 0.21},
		recent:   map[string][]float64{"LTCBTC": {0.21, 0.20}},
		balances: map[string]models.Balance{"BTC": {Free: 1}},
	}
	m, store, n := newTestManager(feed)
	ctx := context.Background()

	_, err := m.CreateTriggers(ctx, models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 1, Kind: models.KindBuyBelow, Value: 0.22},
	})
	require.NoError(t, err)

	require.NoError(t, m.RunTick(ctx))

	require.Len(t, feed.placedOrders, 1)
	assert.Equal(t, models.SideBuy, feed.placedOrders[0].side)
	assert.Equal(t, 1.0, feed.placedOrders[0].qty)

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "fired trigger must be removed")

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Buying 1 of LTCBTC")

	// повторный тик ничего не делает: exactly once
	require.NoError(t, m.RunTick(ctx))
	assert.Len(t, feed.placedOrders, 1)
}

func TestRunTickOrderFailureKeepsTrigger(t *testing.T) {
	feed := &fakeFeed{
		prices:   map[string]float64{"LTCBTC": 0.21},
		recent:   map[string][]float64{"LTCBTC": {0.20}},
		balances: map[string]models.Balance{"BTC": {Free: 1}},
	}
	m, store, n := newTestManager(feed)
	ctx := context.Background()

	_, err := m.CreateTriggers(ctx, models.NewPair("LTC", "BTC"), []TriggerSpec{
		{Quantity: 1, Kind: models.KindBuyBelow, Value: 0.22},
	})
	require.NoError(t, err)

	feed.orderErr = errors.New("insufficient balance")
	require.Error(t, m.RunTick(ctx))

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "trigger must survive a failed order")
	assert.Empty(t, n.messages())

	// биржа ожила — триггер срабатывает на следующем тике
	feed.orderErr = nil
	require.NoError(t, m.RunTick(ctx))
	all, err = store.Iterate(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunTickAlertNotFiredAtThreshold(t *testing.T) {
	feed := &fakeFeed{
		prices: map[string]float64{"LTCBTC": 0.19},
	}
	m, store, n := newTestManager(feed)
	ctx := context.Background()

	_, err := m.CreateAlert(ctx, models.NewPair("LTC", "BTC"), 0.20)
	require.NoError(t, err)

	require.NoError(t, m.RunTick(ctx))
	assert.Empty(t, n.messages())

	feed.prices["LTCBTC"] = 0.21
	require.NoError(t, m.RunTick(ctx))
	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Alert LTCBTC is above")

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunTickEmptyStoreSkipsExchange(t *testing.T) {
	feed := &fakeFeed{}
	m, _, _ := newTestManager(feed)
	require.NoError(t, m.RunTick(context.Background()))
	assert.Empty(t, feed.placedOrders)
}

func TestRunTickUnknownKindWarnsAndKeeps(t *testing.T) {
	feed := &fakeFeed{
		prices: map[string]float64{"LTCBTC": 0.2},
	}
	m, store, n := newTestManager(feed)
	ctx := context.Background()

	// битая запись попадает в хранилище в обход менеджера
	require.NoError(t, store.Insert(ctx, models.Trigger{
		ID: 42, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindUnknown, Threshold: 0.1,
	}))

	require.NoError(t, m.RunTick(ctx))

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Unrecognized trigger kind")

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStoreBasics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, models.Trigger{ID: 2, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindAlertAbove, Threshold: 1}))
	require.NoError(t, store.Insert(ctx, models.Trigger{ID: 1, Pair: models.NewPair("LTC", "BTC"), Kind: models.KindAlertAbove, Threshold: 2}))
	assert.Error(t, store.Insert(ctx, models.Trigger{ID: 1}))

	all, err := store.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.EqualValues(t, 1, all[0].ID)

	ids, err := store.FindByPair(ctx, "LTCBTC")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	require.NoError(t, store.Delete(ctx, 1))
	assert.Equal(t, ErrNotFound, errors.Cause(store.Delete(ctx, 1)))
}
