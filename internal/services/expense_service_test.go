package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
	"spendwise/internal/ports"
	"spendwise/internal/storage/memory"
)

type expenseFixture struct {
	store *memory.Store
	svc   *ExpenseService
	sink  *alertRecorder
	ai    *fakeCompleter
}

func newExpenseFixture(t *testing.T) expenseFixture {
	t.Helper()
	store := memory.New()
	completer := newCompleter(reply{text: "Health"})
	sink := &alertRecorder{}
	classifier := NewClassifier(mustEngine(t), completer, WithClassifyRetryPolicy(fastPolicy))
	evaluator := NewBudgetEvaluator(store, store, store, sink)
	return expenseFixture{
		store: store,
		svc:   NewExpenseService(store, store, classifier, evaluator),
		sink:  sink,
		ai:    completer,
	}
}

func input(t *testing.T, amount, category, description, date string) ExpenseInput {
	t.Helper()
	return ExpenseInput{
		Amount:        dec(amount),
		Category:      category,
		Description:   description,
		Date:          mustDate(t, date),
		PaymentMethod: "card",
	}
}

func TestExpenseService_CreateClassifiesMissingCategory(t *testing.T) {
	f := newExpenseFixture(t)
	addUser(t, f.store, "alice")
	ctx := context.Background()

	e, err := f.svc.Create(ctx, "alice", input(t, "12.345", "", "Uber to airport", "2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, core.CategoryTransport, e.Category)
	assert.True(t, e.Amount.Equal(dec("12.35")), "amount rounded half-up, got %s", e.Amount)
	assert.Equal(t, core.DefaultCurrency, e.Currency)
	assert.NotEmpty(t, e.ID)

	e, err = f.svc.Create(ctx, "alice", input(t, "40", "other", "dentist", "2024-03-06"))
	require.NoError(t, err)
	assert.Equal(t, core.CategoryHealth, e.Category)

	e, err = f.svc.Create(ctx, "alice", input(t, "40", "Gifts", "zomato voucher", "2024-03-06"))
	require.NoError(t, err)
	assert.Equal(t, "Gifts", e.Category, "explicit categories are kept")

	assert.Equal(t, 1, f.ai.Calls())

	stored, err := f.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Description, stored.Description)
}

func TestExpenseService_CreateRejectsInvalidInput(t *testing.T) {
	f := newExpenseFixture(t)
	alice := addUser(t, f.store, "alice")
	ctx := context.Background()

	in := input(t, "0", "Food", strings.Repeat("x", core.MaxDescriptionLen+1), "2024-03-05")
	_, err := f.svc.Create(ctx, "alice", in)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.ErrorIs(t, err, core.ErrDescriptionTooLong)

	in = input(t, "10", "Food", "x", "2024-03-05")
	in.Date = core.Date{}
	_, err = f.svc.Create(ctx, "alice", in)
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	all, err := f.store.ListExpenses(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, f.ai.Calls(), "invalid input is rejected before classification")
}

func TestExpenseService_UnknownUser(t *testing.T) {
	f := newExpenseFixture(t)
	_, err := f.svc.Create(context.Background(), "ghost", input(t, "1", "Food", "", "2024-03-05"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExpenseService_CreateEvaluatesBudget(t *testing.T) {
	f := newExpenseFixture(t)
	alice := addUser(t, f.store, "alice")
	addBudget(t, f.store, alice, core.CategoryFood, "2024-03", "140.00")
	ctx := context.Background()

	for _, in := range []ExpenseInput{
		input(t, "100.00", "Food", "", "2024-03-05"),
		input(t, "50.00", "Food", "", "2024-03-20"),
		input(t, "10.00", "Food", "", "2024-03-21"),
	} {
		_, err := f.svc.Create(ctx, "alice", in)
		require.NoError(t, err)
	}

	alerts := f.sink.All()
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertExceeded, alerts[0].Level, "150 > 140")
	assert.Equal(t, AlertExceeded, alerts[1].Level)
	assert.True(t, alerts[1].Spent.Equal(dec("160.00")))
}

func TestExpenseService_CreateBatchIsAtomic(t *testing.T) {
	f := newExpenseFixture(t)
	alice := addUser(t, f.store, "alice")
	ctx := context.Background()

	bad := input(t, "5", "Food", "", "2024-03-02")
	bad.Amount = decimal.Zero
	_, err := f.svc.CreateBatch(ctx, "alice", []ExpenseInput{
		input(t, "10", "Food", "", "2024-03-01"),
		bad,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expense 2")
	assert.True(t, core.IsValidation(err))

	all, err := f.store.ListExpenses(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, all)

	saved, err := f.svc.CreateBatch(ctx, "alice", []ExpenseInput{
		input(t, "10", "", "netflix", "2024-03-01"),
		input(t, "20", "Food", "", "2024-03-02"),
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, core.CategoryEntertainment, saved[0].Category)

	all, err = f.store.ListExpenses(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExpenseService_UpdateAndDeleteCheckOwnership(t *testing.T) {
	f := newExpenseFixture(t)
	addUser(t, f.store, "alice")
	addUser(t, f.store, "bob")
	ctx := context.Background()

	e, err := f.svc.Create(ctx, "alice", input(t, "10", "Food", "lunch", "2024-03-01"))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "bob", e.ID, input(t, "99", "Food", "", "2024-03-01"))
	assert.ErrorIs(t, err, core.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, "bob", e.ID), core.ErrForbidden)

	updated, err := f.svc.Update(ctx, "alice", e.ID, input(t, "11.50", "Other", "dinner", "2024-03-02"))
	require.NoError(t, err)
	assert.Equal(t, core.CategoryOther, updated.Category, "updates never reclassify")
	assert.True(t, updated.Amount.Equal(dec("11.50")))
	assert.Equal(t, "dinner", updated.Description)

	require.NoError(t, f.svc.Delete(ctx, "alice", e.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, "alice", e.ID), core.ErrNotFound)
	_, err = f.svc.Update(ctx, "alice", e.ID, input(t, "1", "Food", "", "2024-03-01"))
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestExpenseService_ListFiltersAndPages(t *testing.T) {
	f := newExpenseFixture(t)
	addUser(t, f.store, "alice")
	ctx := context.Background()

	for i, in := range []ExpenseInput{
		input(t, "10", "Food", "Pizza night", "2024-03-01"),
		input(t, "20", "Food", "pizza lunch", "2024-03-02"),
		input(t, "30", "Transport", "train", "2024-03-03"),
		input(t, "40", "Food", "sushi", "2024-03-04"),
	} {
		_, err := f.svc.Create(ctx, "alice", in)
		require.NoError(t, err, "item %d", i)
	}

	page, err := f.svc.List(ctx, "alice", ports.ExpenseFilter{Category: "Food", Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "sushi", page.Items[0].Description, "newest first")

	page, err = f.svc.List(ctx, "alice", ports.ExpenseFilter{Description: "PIZZA"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.List(ctx, "alice", ports.ExpenseFilter{
		MinAmount: decimal.NewNullDecimal(dec("15")),
		MaxAmount: decimal.NewNullDecimal(dec("30")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.List(ctx, "alice", ports.ExpenseFilter{
		StartDate: mustDate(t, "2024-03-02"),
		EndDate:   mustDate(t, "2024-03-03"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, ports.DefaultPageSize, page.Size)
}
