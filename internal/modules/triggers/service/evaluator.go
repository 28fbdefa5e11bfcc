package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trigger_bot/internal/models"
	"trigger_bot/pkg/logger"

	"github.com/pkg/errors"
)

// RecentPricer — единственный сетевой контракт, нужный evaluator-у.
type RecentPricer interface {
	GetRecentTradePrices(ctx context.Context, pair models.Pair, start, end time.Time) ([]float64, error)
}

type ActionType uint8

const (
	ActionAlert ActionType = iota + 1
	ActionOrder
	ActionWarn
)

// Action — сработавший триггер и что с ним делать. Warn — битая
// запись: уведомляем, но триггер не удаляем.
type Action struct {
	Type     ActionType
	Trigger  models.Trigger
	Side     models.Side
	Quantity float64
	Message  string
}

// Snapshot — консистентный срез рынка на начало тика.
type Snapshot struct {
	Prices     map[string]float64
	Balances   map[string]models.Balance
	ServerTime time.Time
}

type Evaluator struct {
	feed        RecentPricer
	runInterval time.Duration
	outlierFrac float64
}

func NewEvaluator(feed RecentPricer, runInterval time.Duration, outlierFrac float64) *Evaluator {
	return &Evaluator{feed: feed, runInterval: runInterval, outlierFrac: outlierFrac}
}

// Evaluate прогоняет все триггеры по снапшоту. Ничего не исполняет и
// не удаляет — только решает; повторный вызов на том же снапшоте даёт
// тот же набор действий. Нет цены тикера — триггер пропускается до
// следующего тика. Ошибка похода за recent price роняет весь тик.
func (e *Evaluator) Evaluate(ctx context.Context, triggers []models.Trigger, snap Snapshot) ([]Action, error) {
	var actions []Action
	for _, t := range triggers {
		symbol := t.Pair.Symbol()
		currentPrice, ok := snap.Prices[symbol]
		if !ok {
			logger.Info("no ticker price for %s, trigger %d skipped", symbol, t.ID)
			continue
		}

		recentPrice := currentPrice
		if t.Kind.IsOrder() {
			var err error
			recentPrice, err = e.recentPrice(ctx, t.Pair, snap.ServerTime, currentPrice)
			if err != nil {
				return nil, errors.Wrapf(err, "recent price %s", symbol)
			}
		}

		free := snap.Balances[t.Pair.Base].Free
		if a, fired := decide(t, currentPrice, recentPrice, free); fired {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

// recentPrice — максимум цен сделок за окно в два интервала тика.
// Пустое окно — откатываемся на текущую цену тикера, без ретраев.
func (e *Evaluator) recentPrice(ctx context.Context, pair models.Pair, serverTime time.Time, fallback float64) (float64, error) {
	start := serverTime.Add(-2 * e.runInterval)
	prices, err := e.feed.GetRecentTradePrices(ctx, pair, start, serverTime)
	if err != nil {
		return 0, err
	}
	prices = filterOutliers(prices, e.outlierFrac)
	if len(prices) == 0 {
		return fallback, nil
	}
	recent := prices[0]
	for _, p := range prices[1:] {
		if p > recent {
			recent = p
		}
	}
	return recent, nil
}

// filterOutliers оставляет долю frac сэмплов, ближайших к медиане:
// один шальной принт не должен дёргать триггеры.
func filterOutliers(prices []float64, frac float64) []float64 {
	if frac <= 0 || frac >= 1 || len(prices) < 3 {
		return prices
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	keep := int(math.Ceil(frac * float64(len(prices))))
	byDist := make([]float64, len(prices))
	copy(byDist, prices)
	sort.Slice(byDist, func(i, j int) bool {
		return math.Abs(byDist[i]-median) < math.Abs(byDist[j]-median)
	})
	return byDist[:keep]
}

// decide — чистое решение по одному триггеру на снапшоте тика.
func decide(t models.Trigger, currentPrice, recentPrice, freeBase float64) (Action, bool) {
	symbol := t.Pair.Symbol()
	exp := findExp(currentPrice)

	switch t.Kind {
	case models.KindAlertAbove:
		if currentPrice > t.Threshold {
			return Action{
				Type:    ActionAlert,
				Trigger: t,
				Message: fmt.Sprintf("Alert %s is above %s at %s.",
					symbol, formatScientificExp(t.Threshold, exp), formatScientificExp(currentPrice, exp)),
			}, true
		}

	case models.KindAlertBelow:
		if currentPrice < t.Threshold {
			return Action{
				Type:    ActionAlert,
				Trigger: t,
				Message: fmt.Sprintf("Alert %s is below %s at %s.",
					symbol, formatScientificExp(t.Threshold, exp), formatScientificExp(currentPrice, exp)),
			}, true
		}

	case models.KindBuyBelow:
		if recentPrice < t.Threshold {
			return Action{
				Type:     ActionOrder,
				Trigger:  t,
				Side:     models.SideBuy,
				Quantity: t.Quantity,
				Message: fmt.Sprintf("Buying %v of %s at %s, price is below %s.",
					t.Quantity, symbol, formatScientificExp(currentPrice, exp), formatScientificExp(t.Threshold, exp)),
			}, true
		}

	case models.KindSellAbove:
		viable := math.Min(freeBase, t.Quantity)
		if recentPrice > t.Threshold && viable > 0 {
			return Action{
				Type:     ActionOrder,
				Trigger:  t,
				Side:     models.SideSell,
				Quantity: viable,
				Message: fmt.Sprintf("Selling %v of %s at %s, price is above %s.",
					viable, symbol, formatScientificExp(currentPrice, exp), formatScientificExp(t.Threshold, exp)),
			}, true
		}

	case models.KindSellBelow, models.KindTrailingStopLoss:
		// trailing stop не подтягивает порог за ценой: порог зафиксирован
		// при создании, дальше ведёт себя как SELL_BELOW
		viable := math.Min(freeBase, t.Quantity)
		if recentPrice < t.Threshold && viable > 0 {
			return Action{
				Type:     ActionOrder,
				Trigger:  t,
				Side:     models.SideSell,
				Quantity: viable,
				Message: fmt.Sprintf("Selling %v of %s at %s, price is below %s.",
					viable, symbol, formatScientificExp(currentPrice, exp), formatScientificExp(t.Threshold, exp)),
			}, true
		}

	default:
		// запись с неизвестным типом: не срабатывает и не удаляется,
		// но оператор должен узнать о порче данных
		return Action{
			Type:    ActionWarn,
			Trigger: t,
			Message: fmt.Sprintf("Unrecognized trigger kind: %s (id=%d)", t.Kind, t.ID),
		}, true
	}

	return Action{}, false
}
