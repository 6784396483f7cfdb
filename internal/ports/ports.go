// Package ports declares the storage interfaces the services depend on.
// Both the SQLite repository and the in-memory store implement them.
package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// Ports for outbound adapters. Lookups return core.ErrNotFound when nothing
// matches; soft-deleted expenses are invisible to every read.
type (
	UserStore interface {
		// CreateUser returns core.ErrConflict when the username is taken.
		CreateUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	ExpenseStore interface {
		SaveExpense(ctx context.Context, e core.Expense) error
		// SaveExpenses stores all expenses or none of them.
		SaveExpenses(ctx context.Context, es []core.Expense) error
		UpdateExpense(ctx context.Context, e core.Expense) error
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		SoftDeleteExpense(ctx context.Context, id string) error
		// ListExpenses returns the owner's full history.
		ListExpenses(ctx context.Context, ownerID string) ([]core.Expense, error)
		ListExpensesByMonth(ctx context.Context, ownerID string, month core.Month) ([]core.Expense, error)
		ListExpensesByCategoryMonth(ctx context.Context, ownerID, category string, month core.Month) ([]core.Expense, error)
		FilterExpenses(ctx context.Context, ownerID string, f ExpenseFilter) (ExpensePage, error)
	}

	BudgetStore interface {
		GetBudget(ctx context.Context, ownerID, category string, month core.Month) (core.Budget, error)
		// UpsertBudget overwrites the limit of an existing (owner, category,
		// month) budget and returns the stored record.
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error)
	}

	SnapshotStore interface {
		GetSnapshot(ctx context.Context, ownerID string, month core.Month) (core.InsightSnapshot, error)
		// SaveSnapshot returns core.ErrConflict when a snapshot already exists
		// for the same owner and month.
		SaveSnapshot(ctx context.Context, s core.InsightSnapshot) error
	}

	Store interface {
		UserStore
		ExpenseStore
		BudgetStore
		SnapshotStore
	}
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ExpenseFilter narrows an owner's expenses. Zero values disable a criterion.
type ExpenseFilter struct {
	Category    string
	StartDate   core.Date
	EndDate     core.Date
	MinAmount   decimal.NullDecimal
	MaxAmount   decimal.NullDecimal
	Description string // case-insensitive substring
	Page        int    // zero-based
	Size        int
}

// Normalize clamps paging to sane bounds.
func (f ExpenseFilter) Normalize() ExpenseFilter {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}

// Offset returns the number of rows skipped before the page.
func (f ExpenseFilter) Offset() int {
	return f.Page * f.Size
}

// ExpensePage is one page of a filtered listing, ordered by date descending.
type ExpensePage struct {
	Items []core.Expense `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}
