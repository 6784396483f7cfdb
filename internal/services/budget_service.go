package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
)

// BudgetService manages monthly category limits.
type BudgetService struct {
	users   ports.UserStore
	budgets ports.BudgetStore
	now     func() time.Time
}

func NewBudgetService(users ports.UserStore, budgets ports.BudgetStore) *BudgetService {
	return &BudgetService{users: users, budgets: budgets, now: time.Now}
}

// Set creates or overwrites the budget for (username, category, month).
func (s *BudgetService) Set(ctx context.Context, username, category string, month core.Month, limit decimal.Decimal) (core.Budget, error) {
	owner, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return core.Budget{}, fmt.Errorf("get user %q: %w", username, err)
	}

	b := core.Budget{
		ID:        uuid.NewString(),
		OwnerID:   owner.ID,
		Category:  strings.TrimSpace(category),
		Month:     month,
		Limit:     core.RoundAmount(limit),
		UpdatedAt: s.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	stored, err := s.budgets.UpsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget set",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwner, owner.Username,
		applog.FieldCategory, stored.Category,
		applog.FieldMonth, stored.Month.String(),
		applog.FieldLimit, core.FormatAmount(stored.Limit))
	return stored, nil
}

// List returns the owner's budgets, newest month first, then by category.
func (s *BudgetService) List(ctx context.Context, username string) ([]core.Budget, error) {
	owner, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	out, err := s.budgets.ListBudgets(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := out[i].Month, out[j].Month
		if mi != mj {
			return mi.FirstDay().After(mj.FirstDay().Time)
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}
