package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
)

// ExpenseInput is the caller-supplied part of an expense.
type ExpenseInput struct {
	Amount        decimal.Decimal
	Category      string
	Description   string
	Date          core.Date
	PaymentMethod string
	Currency      string
}

// ExpenseService orchestrates expense writes: classification of missing
// categories, persistence, then a best-effort budget check.
type ExpenseService struct {
	users      ports.UserStore
	store      ports.ExpenseStore
	classifier *Classifier
	budgets    *BudgetEvaluator
	now        func() time.Time
}

// NewExpenseService wires the service. classifier and budgets may be nil.
func NewExpenseService(users ports.UserStore, store ports.ExpenseStore, classifier *Classifier, budgets *BudgetEvaluator) *ExpenseService {
	return &ExpenseService{
		users:      users,
		store:      store,
		classifier: classifier,
		budgets:    budgets,
		now:        time.Now,
	}
}

// Create stores a single expense for username and returns it.
func (s *ExpenseService) Create(ctx context.Context, username string, in ExpenseInput) (core.Expense, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return core.Expense{}, err
	}

	e, err := s.build(ctx, owner, in)
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.store.SaveExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogExpenseCreated(ctx, e.ID, owner.Username, e.Category, core.FormatAmount(e.Amount))

	s.evaluate(ctx, e)
	return e, nil
}

// CreateBatch stores every input or none of them. Validation happens before
// any write; the first invalid item rejects the batch with its index.
func (s *ExpenseService) CreateBatch(ctx context.Context, username string, inputs []ExpenseInput) ([]core.Expense, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([]core.Expense, 0, len(inputs))
	for i, in := range inputs {
		e, err := s.build(ctx, owner, in)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		out = append(out, e)
	}

	if err := s.store.SaveExpenses(ctx, out); err != nil {
		return nil, fmt.Errorf("save expenses: %w", err)
	}

	slog.InfoContext(ctx, "Imported expenses",
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpImport,
		applog.FieldOwner, owner.Username,
		"count", len(out))

	for _, e := range out {
		s.evaluate(ctx, e)
	}
	return out, nil
}

// Update replaces every field of an existing expense. The category is kept as
// provided, including "Other".
func (s *ExpenseService) Update(ctx context.Context, username, id string, in ExpenseInput) (core.Expense, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return core.Expense{}, err
	}
	current, err := s.owned(ctx, owner, id)
	if err != nil {
		return core.Expense{}, err
	}

	updated := current
	updated.Amount = core.RoundAmount(in.Amount)
	updated.Category = strings.TrimSpace(in.Category)
	updated.Description = strings.TrimSpace(in.Description)
	updated.Date = in.Date
	updated.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	updated.Currency = currencyOrDefault(in.Currency)
	updated.UpdatedAt = s.now().UTC()
	if err := updated.Validate(); err != nil {
		return core.Expense{}, err
	}

	if err := s.store.UpdateExpense(ctx, updated); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.evaluate(ctx, updated)
	return updated, nil
}

// Delete soft-deletes an expense owned by username.
func (s *ExpenseService) Delete(ctx context.Context, username, id string) error {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, owner, id); err != nil {
		return err
	}
	if err := s.store.SoftDeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}
	slog.InfoContext(ctx, "Deleted expense",
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldOwner, owner.Username,
		applog.FieldExpenseID, id)
	return nil
}

// List returns one page of the owner's expenses matching f.
func (s *ExpenseService) List(ctx context.Context, username string, f ports.ExpenseFilter) (ports.ExpensePage, error) {
	owner, err := s.owner(ctx, username)
	if err != nil {
		return ports.ExpensePage{}, err
	}
	page, err := s.store.FilterExpenses(ctx, owner.ID, f.Normalize())
	if err != nil {
		return ports.ExpensePage{}, fmt.Errorf("filter expenses: %w", err)
	}
	return page, nil
}

func (s *ExpenseService) owner(ctx context.Context, username string) (core.User, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

func (s *ExpenseService) owned(ctx context.Context, owner core.User, id string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	if e.OwnerID != owner.ID {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrForbidden)
	}
	return e, nil
}

// build validates in and fills in category, currency and identifiers.
// Classification only runs once the rest of the input is valid.
func (s *ExpenseService) build(ctx context.Context, owner core.User, in ExpenseInput) (core.Expense, error) {
	now := s.now().UTC()
	e := core.Expense{
		ID:            uuid.NewString(),
		OwnerID:       owner.ID,
		Amount:        core.RoundAmount(in.Amount),
		Category:      strings.TrimSpace(in.Category),
		Description:   strings.TrimSpace(in.Description),
		Date:          in.Date,
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Currency:      currencyOrDefault(in.Currency),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	needsCategory := core.IsOther(e.Category)
	if needsCategory {
		// placeholder so validation does not flag the category
		e.Category = core.CategoryOther
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if needsCategory && s.classifier != nil {
		e.Category = s.classifier.Categorize(ctx, e.Description)
	}
	return e, nil
}

func (s *ExpenseService) evaluate(ctx context.Context, e core.Expense) {
	if s.budgets == nil {
		return
	}
	s.budgets.EvaluateBestEffort(ctx, e)
}

func currencyOrDefault(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return core.DefaultCurrency
	}
	return strings.ToUpper(c)
}

