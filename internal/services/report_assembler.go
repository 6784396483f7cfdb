package services

import (
	"context"
	"fmt"
	"sort"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

// ReportSink renders or ships a monthly report somewhere outside the service.
// It returns a human readable location of the result.
type ReportSink interface {
	Export(ctx context.Context, r core.Report) (string, error)
}

// ReportAssembler combines the monthly insight with the month's transactions.
type ReportAssembler struct {
	users    ports.UserStore
	expenses ports.ExpenseStore
	insights *InsightAggregator
}

func NewReportAssembler(users ports.UserStore, expenses ports.ExpenseStore, insights *InsightAggregator) *ReportAssembler {
	return &ReportAssembler{users: users, expenses: expenses, insights: insights}
}

// Assemble builds the report of month for username.
func (a *ReportAssembler) Assemble(ctx context.Context, username string, month core.Month) (core.Report, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return core.Report{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return a.AssembleForUser(ctx, user, month)
}

// AssembleForUser is Assemble for an already resolved user.
func (a *ReportAssembler) AssembleForUser(ctx context.Context, user core.User, month core.Month) (core.Report, error) {
	insight, err := a.insights.ComputeForUser(ctx, user, month)
	if err != nil {
		return core.Report{}, fmt.Errorf("compute insight: %w", err)
	}
	items, err := a.expenses.ListExpensesByMonth(ctx, user.ID, month)
	if err != nil {
		return core.Report{}, fmt.Errorf("list month expenses: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date.Time)
	})
	return core.Report{
		Owner:    user.Username,
		Month:    month,
		Insight:  insight,
		Expenses: items,
	}, nil
}
