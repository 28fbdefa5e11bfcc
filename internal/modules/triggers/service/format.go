package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"trigger_bot/internal/models"
)

// findExp подбирает порядок для научной записи цены: сатоши-цены
// нечитаемы в обычном десятичном формате.
func findExp(value float64) int {
	switch {
	case value >= 1e9:
		return 9
	case value >= 1e6:
		return 6
	case value >= 1e3:
		return 3
	case value >= 1e0:
		return 0
	case value >= 1e-3:
		return -3
	case value >= 1e-6:
		return -6
	case value >= 1e-9:
		return -9
	}
	return 0
}

func formatScientific(value float64) string {
	return formatScientificExp(value, findExp(value))
}

func formatScientificExp(value float64, exp int) string {
	if value == 0 {
		return "0"
	}
	if exp == 0 {
		return fmt.Sprintf("%.2f", value)
	}
	return fmt.Sprintf("%.2fe%d", value/math.Pow10(exp), exp)
}

func formatPrices(prices map[string]float64) string {
	symbols := make([]string, 0, len(prices))
	for s := range prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	lines := make([]string, 0, len(symbols))
	for _, s := range symbols {
		lines = append(lines, fmt.Sprintf("%s: %s", s, formatScientific(prices[s])))
	}
	return strings.Join(lines, "\n")
}

func formatBalances(balances map[string]models.Balance) string {
	symbols := make([]string, 0, len(balances))
	for s := range balances {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	lines := make([]string, 0, len(symbols))
	for _, s := range symbols {
		lines = append(lines, fmt.Sprintf("%s: %s", s, formatScientific(balances[s].Total())))
	}
	return strings.Join(lines, "\n")
}

// formatTriggers группирует триггеры по паре, внутри пары сортирует
// по порогу. useRepr — сырой дамп записей для отладки.
func formatTriggers(triggers []models.Trigger, useRepr bool, prices map[string]float64) string {
	sorted := make([]models.Trigger, len(triggers))
	copy(sorted, triggers)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Pair.Base != b.Pair.Base {
			return a.Pair.Base < b.Pair.Base
		}
		if a.Pair.Quote != b.Pair.Quote {
			return a.Pair.Quote < b.Pair.Quote
		}
		return a.Threshold < b.Threshold
	})

	var lines []string
	lastPair := ""
	for _, t := range sorted {
		if useRepr {
			lines = append(lines, fmt.Sprintf("%+v", t))
			continue
		}
		pair := t.Pair.Symbol()
		if pair != lastPair {
			lastPair = pair
			lines = append(lines, pair+":")
		}
		exp := findExp(prices[pair])
		if t.Kind.IsOrder() {
			lines = append(lines, fmt.Sprintf("%s %s %v (id=%d)",
				formatScientificExp(t.Threshold, exp), t.Kind, t.Quantity, t.ID))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s (id=%d)",
				formatScientificExp(t.Threshold, exp), t.Kind, t.ID))
		}
	}
	return strings.Join(lines, "\n")
}

func buildStatusMsg(triggers []models.Trigger, prices map[string]float64, balances map[string]models.Balance, useRepr bool) string {
	text := []string{
		"Status:",
		formatTriggers(triggers, useRepr, prices),
		"\nPrices:\n" + formatPrices(prices),
		"\nBalances:\n" + formatBalances(balances),
	}
	return strings.Join(text, "\n")
}
