package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
)

// AlertLevel is the outcome of comparing month-to-date spend with a budget.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertWarning
	AlertExceeded
)

func (l AlertLevel) String() string {
	switch l {
	case AlertWarning:
		return "warning"
	case AlertExceeded:
		return "exceeded"
	default:
		return "none"
	}
}

var warningRatio = decimal.RequireFromString("0.9")

// BudgetAlert is emitted whenever an evaluation lands above AlertNone.
type BudgetAlert struct {
	OwnerID  string
	Owner    string
	Category string
	Month    core.Month
	Limit    decimal.Decimal
	Spent    decimal.Decimal
	Level    AlertLevel
}

// AlertSink receives budget alerts. Delivery is best effort.
type AlertSink interface {
	SendBudgetAlert(ctx context.Context, alert BudgetAlert) error
}

// AlertSinkFunc adapts a function to AlertSink.
type AlertSinkFunc func(ctx context.Context, alert BudgetAlert) error

func (f AlertSinkFunc) SendBudgetAlert(ctx context.Context, alert BudgetAlert) error {
	return f(ctx, alert)
}

// LevelFor classifies spent against limit: above the limit is Exceeded,
// above 90% of it is Warning.
func LevelFor(spent, limit decimal.Decimal) AlertLevel {
	switch {
	case spent.GreaterThan(limit):
		return AlertExceeded
	case spent.GreaterThan(limit.Mul(warningRatio)):
		return AlertWarning
	default:
		return AlertNone
	}
}

// BudgetEvaluator recomputes the month-to-date spend of the expense's
// category on every call.
type BudgetEvaluator struct {
	expenses ports.ExpenseStore
	budgets  ports.BudgetStore
	users    ports.UserStore
	sink     AlertSink
}

// NewBudgetEvaluator builds an evaluator. sink may be nil.
func NewBudgetEvaluator(expenses ports.ExpenseStore, budgets ports.BudgetStore, users ports.UserStore, sink AlertSink) *BudgetEvaluator {
	return &BudgetEvaluator{
		expenses: expenses,
		budgets:  budgets,
		users:    users,
		sink:     sink,
	}
}

// Evaluate returns the alert level for the budget covering e. A missing
// budget yields AlertNone. The stored expense must already be persisted so
// that it is part of the sum.
func (b *BudgetEvaluator) Evaluate(ctx context.Context, e core.Expense) (AlertLevel, error) {
	month := core.MonthOf(e.Date.Time)
	budget, err := b.budgets.GetBudget(ctx, e.OwnerID, e.Category, month)
	if errors.Is(err, core.ErrNotFound) {
		return AlertNone, nil
	}
	if err != nil {
		return AlertNone, fmt.Errorf("get budget: %w", err)
	}

	items, err := b.expenses.ListExpensesByCategoryMonth(ctx, e.OwnerID, e.Category, month)
	if err != nil {
		return AlertNone, fmt.Errorf("list month expenses: %w", err)
	}
	spent := core.TotalAmount(items)

	level := LevelFor(spent, budget.Limit)
	if level == AlertNone {
		return level, nil
	}

	alert := BudgetAlert{
		OwnerID:  e.OwnerID,
		Owner:    b.ownerName(ctx, e.OwnerID),
		Category: e.Category,
		Month:    month,
		Limit:    budget.Limit,
		Spent:    spent,
		Level:    level,
	}
	b.emit(ctx, alert)
	return level, nil
}

// EvaluateBestEffort runs Evaluate and logs instead of returning failures.
func (b *BudgetEvaluator) EvaluateBestEffort(ctx context.Context, e core.Expense) AlertLevel {
	level, err := b.Evaluate(ctx, e)
	if err != nil {
		slog.ErrorContext(ctx, "Budget evaluation failed",
			applog.FieldComponent, applog.ComponentBudget,
			applog.FieldOperation, applog.OpEvaluate,
			applog.FieldExpenseID, e.ID,
			applog.FieldError, err)
		return AlertNone
	}
	return level
}

func (b *BudgetEvaluator) emit(ctx context.Context, a BudgetAlert) {
	args := []any{
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwner, a.Owner,
		applog.FieldCategory, a.Category,
		applog.FieldMonth, a.Month.String(),
		applog.FieldSpent, core.FormatAmount(a.Spent),
		applog.FieldLimit, core.FormatAmount(a.Limit),
	}
	if a.Level == AlertExceeded {
		slog.WarnContext(ctx, "Budget exceeded", args...)
	} else {
		slog.InfoContext(ctx, "Budget warning", args...)
	}

	if b.sink == nil {
		return
	}
	if err := b.sink.SendBudgetAlert(ctx, a); err != nil {
		slog.ErrorContext(ctx, "Failed to route budget alert",
			applog.FieldComponent, applog.ComponentBudget,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldOwner, a.Owner,
			applog.FieldError, err)
	}
}

func (b *BudgetEvaluator) ownerName(ctx context.Context, ownerID string) string {
	if b.users == nil {
		return ownerID
	}
	u, err := b.users.GetUser(ctx, ownerID)
	if err != nil {
		return ownerID
	}
	return u.Username
}
