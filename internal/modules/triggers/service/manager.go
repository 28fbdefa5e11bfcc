package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"trigger_bot/internal/models"
	"trigger_bot/internal/notify"
	"trigger_bot/pkg/logger"

	"github.com/pkg/errors"
)

// PriceFeed — контракт биржи, который потребляет ядро.
type PriceFeed interface {
	GetAllTickerPrices(ctx context.Context) (map[string]float64, error)
	GetRecentTradePrices(ctx context.Context, pair models.Pair, start, end time.Time) ([]float64, error)
	GetAccountBalances(ctx context.Context, symbols map[string]struct{}) (map[string]models.Balance, error)
	GetServerTime(ctx context.Context) (time.Time, error)
	PlaceMarketOrder(ctx context.Context, pair models.Pair, side models.Side, quantity float64) (models.OrderResult, error)
	ValidateOrder(ctx context.Context, pair models.Pair, side models.Side, quantity float64) error
	GetSymbolTradingRules(ctx context.Context, pair models.Pair) (models.TradingRules, error)
}

// TriggerSpec — одна тройка из команды /trade. Для trailing stop
// Value — это delta, порог вычислим от текущей цены.
type TriggerSpec struct {
	Quantity float64
	Kind     models.Kind
	Value    float64
}

// Manager владеет хранилищем триггеров и single-flight локом: тик
// воркера и все командные хендлеры ходят сюда строго по очереди.
type Manager struct {
	mu       sync.Mutex
	store    Store
	settings SettingsStore
	feed     PriceFeed
	notifier notify.Notifier
	eval     *Evaluator

	nextID   int64
	idLoaded bool
}

func NewManager(store Store, settings SettingsStore, feed PriceFeed, n notify.Notifier, eval *Evaluator) *Manager {
	return &Manager{
		store:    store,
		settings: settings,
		feed:     feed,
		notifier: n,
		eval:     eval,
	}
}

// allocID выдаёт следующий id из сквозного счётчика. Зовётся только
// под m.mu.
func (m *Manager) allocID(ctx context.Context) (int64, error) {
	if !m.idLoaded {
		raw, err := m.settings.Get(ctx, KeyNextID)
		if err != nil {
			return 0, errors.Wrap(err, "load next_id")
		}
		if raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "corrupt next_id %q", raw)
			}
			m.nextID = n
		}
		m.idLoaded = true
	}

	id := m.nextID
	m.nextID++
	if err := m.settings.Set(ctx, KeyNextID, strconv.FormatInt(m.nextID, 10)); err != nil {
		return 0, errors.Wrap(err, "persist next_id")
	}
	return id, nil
}

// CreateTriggers создаёт триггеры из /trade. Каждый ордерный триггер
// сначала проходит dry-run проверку на бирже: отклонённый ордер не
// попадает в хранилище.
func (m *Manager) CreateTriggers(ctx context.Context, pair models.Pair, specs []TriggerSpec) ([]models.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := pair.Validate(); err != nil {
		return nil, err
	}

	var rules models.TradingRules
	var rulesLoaded bool

	created := make([]models.Trigger, 0, len(specs))
	for _, spec := range specs {
		t := models.Trigger{
			Pair:      pair,
			Kind:      spec.Kind,
			Quantity:  spec.Quantity,
			Threshold: spec.Value,
		}

		if spec.Kind == models.KindTrailingStopLoss {
			entry, err := m.currentPrice(ctx, pair)
			if err != nil {
				return created, err
			}
			t.Delta = spec.Value
			t.Threshold = entry * (1 - spec.Value)
		}

		if err := t.Validate(); err != nil {
			return created, err
		}

		if spec.Kind.IsOrder() {
			if !rulesLoaded {
				var err error
				rules, err = m.feed.GetSymbolTradingRules(ctx, pair)
				if err != nil {
					return created, errors.Wrap(err, "trading rules")
				}
				rulesLoaded = true
			}
			if rules.MinQty > 0 && t.Quantity < rules.MinQty {
				return created, errors.Errorf("quantity %v is below the minimum lot %v", t.Quantity, rules.MinQty)
			}
			side := models.SideSell
			if spec.Kind == models.KindBuyBelow {
				side = models.SideBuy
			}
			if err := m.feed.ValidateOrder(ctx, pair, side, t.Quantity); err != nil {
				return created, err
			}
		}

		id, err := m.allocID(ctx)
		if err != nil {
			return created, err
		}
		t.ID = id

		if err := m.store.Insert(ctx, t); err != nil {
			return created, err
		}
		created = append(created, t)
		triggersCreated.WithLabelValues(t.Kind.String()).Inc()
	}

	return created, m.store.Flush(ctx)
}

// CreateAlert создаёт алерт из /alert: направление выбирается само,
// по положению порога относительно текущей цены.
func (m *Manager) CreateAlert(ctx context.Context, pair models.Pair, threshold float64) (models.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := pair.Validate(); err != nil {
		return models.Trigger{}, err
	}

	current, err := m.currentPrice(ctx, pair)
	if err != nil {
		return models.Trigger{}, err
	}

	kind := models.KindAlertBelow
	if threshold > current {
		kind = models.KindAlertAbove
	}

	t := models.Trigger{Pair: pair, Kind: kind, Threshold: threshold}
	if err := t.Validate(); err != nil {
		return models.Trigger{}, err
	}

	id, err := m.allocID(ctx)
	if err != nil {
		return models.Trigger{}, err
	}
	t.ID = id

	if err := m.store.Insert(ctx, t); err != nil {
		return models.Trigger{}, err
	}
	triggersCreated.WithLabelValues(t.Kind.String()).Inc()
	return t, m.store.Flush(ctx)
}

func (m *Manager) currentPrice(ctx context.Context, pair models.Pair) (float64, error) {
	prices, err := m.feed.GetAllTickerPrices(ctx)
	if err != nil {
		return 0, err
	}
	price, ok := prices[pair.Symbol()]
	if !ok {
		return 0, errors.Errorf("no market %s on the exchange", pair.Symbol())
	}
	return price, nil
}

// Remove удаляет триггеры по id либо все триггеры пары.
func (m *Manager) Remove(ctx context.Context, idOrPair string) ([]models.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	if id, err := strconv.ParseInt(idOrPair, 10, 64); err == nil {
		ids = []int64{id}
	} else {
		found, err := m.store.FindByPair(ctx, idOrPair)
		if err != nil {
			return nil, err
		}
		ids = found
	}

	triggers, err := m.store.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Trigger, len(triggers))
	for _, t := range triggers {
		byID[t.ID] = t
	}

	var removed []models.Trigger
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if err := m.store.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed = append(removed, t)
	}
	return removed, m.store.Flush(ctx)
}

// Status — текстовый отчёт: триггеры по парам, цены, балансы.
func (m *Manager) Status(ctx context.Context, useRepr bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	triggers, err := m.store.Iterate(ctx)
	if err != nil {
		return "", err
	}

	prices, err := m.feed.GetAllTickerPrices(ctx)
	if err != nil {
		return "", err
	}
	// в отчёте только рынки, по которым есть триггеры
	relevant := make(map[string]float64, len(triggers))
	for _, t := range triggers {
		if p, ok := prices[t.Pair.Symbol()]; ok {
			relevant[t.Pair.Symbol()] = p
		}
	}

	balances, err := m.feed.GetAccountBalances(ctx, flatSymbols(triggers))
	if err != nil {
		return "", err
	}

	return buildStatusMsg(triggers, relevant, balances, useRepr), nil
}

// RunTick — одно прохождение цикла: снапшот рынка, оценка всех
// триггеров, исполнение сработавших, удаление исполненных. Весь тик
// идёт под single-flight локом.
func (m *Manager) RunTick(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	triggers, err := m.store.Iterate(ctx)
	if err != nil {
		return err
	}
	triggersActive.Set(float64(len(triggers)))
	if len(triggers) == 0 {
		return nil
	}

	balances, err := m.feed.GetAccountBalances(ctx, flatSymbols(triggers))
	if err != nil {
		return err
	}
	prices, err := m.feed.GetAllTickerPrices(ctx)
	if err != nil {
		return err
	}
	serverTime, err := m.feed.GetServerTime(ctx)
	if err != nil {
		return err
	}

	actions, err := m.eval.Evaluate(ctx, triggers, Snapshot{
		Prices:     prices,
		Balances:   balances,
		ServerTime: serverTime,
	})
	if err != nil {
		return err
	}

	var deletes []int64
	var dispatchErr error
	for _, a := range actions {
		switch a.Type {
		case ActionWarn:
			// триггер остаётся: это порча данных, а не срабатывание
			m.notifier.Send(a.Message)

		case ActionAlert:
			m.notifier.Send(a.Message)
			deletes = append(deletes, a.Trigger.ID)
			triggersFired.WithLabelValues(a.Trigger.Kind.String()).Inc()

		case ActionOrder:
			// ордер ставится до пометки на удаление: если биржа его не
			// приняла, триггер обязан пережить этот тик
			if _, err := m.feed.PlaceMarketOrder(ctx, a.Trigger.Pair, a.Side, a.Quantity); err != nil {
				dispatchErr = errors.Wrapf(err, "trigger %d", a.Trigger.ID)
				break
			}
			m.notifier.Send(a.Message)
			deletes = append(deletes, a.Trigger.ID)
			triggersFired.WithLabelValues(a.Trigger.Kind.String()).Inc()
		}
		if dispatchErr != nil {
			break
		}
	}

	for _, id := range deletes {
		if err := m.store.Delete(ctx, id); err != nil {
			logger.Error("delete fired trigger %d: %v", id, err)
		}
	}
	if err := m.store.Flush(ctx); err != nil {
		if dispatchErr == nil {
			dispatchErr = err
		}
	}
	return dispatchErr
}

func flatSymbols(triggers []models.Trigger) map[string]struct{} {
	out := make(map[string]struct{}, 2*len(triggers))
	for _, t := range triggers {
		out[t.Pair.Base] = struct{}{}
		out[t.Pair.Quote] = struct{}{}
	}
	return out
}
