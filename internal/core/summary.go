package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// InsightResult is the monthly summary of one owner's spending.
// CategoryTotals only has keys for categories with at least one expense.
type InsightResult struct {
	Month                 Month                      `json:"month"`
	CategoryTotals        map[string]decimal.Decimal `json:"categoryTotals"`
	TotalSpending         decimal.Decimal            `json:"totalSpending"`
	PreviousMonthTotal    decimal.Decimal            `json:"previousMonthTotal"`
	MonthOverMonthPercent decimal.Decimal            `json:"monthOverMonthPercent"`
	Narrative             string                     `json:"narrative"`
	DailySpending         map[Date]decimal.Decimal   `json:"dailySpending"`
	WeeklySpending        map[int]decimal.Decimal    `json:"weeklySpending"`
}

// SortedCategories returns the category totals ordered by amount descending,
// then by name.
func (r InsightResult) SortedCategories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(r.CategoryTotals))
	for name, amount := range r.CategoryTotals {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
