package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spendwise/internal/ai"
	"spendwise/internal/core"
	"spendwise/internal/retry"
	"spendwise/internal/rules"
	"spendwise/internal/storage/memory"
)

// fastPolicy keeps the attempt count of the production policies without the waits.
var fastPolicy = retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

type reply struct {
	text string
	err  error
}

// fakeCompleter answers from a script; the last reply repeats once the script
// is exhausted.
type fakeCompleter struct {
	mu         sync.Mutex
	configured bool
	replies    []reply
	delay      time.Duration
	calls      int
	prompts    []string
}

func newCompleter(replies ...reply) *fakeCompleter {
	return &fakeCompleter{configured: true, replies: replies}
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, user)
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if len(f.replies) == 0 {
		return "", &ai.Error{Message: "no reply scripted"}
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx].text, f.replies[idx].err
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func transient() error { return &ai.Error{StatusCode: 503, Message: "unavailable", Retryable: true} }
func permanent() error { return &ai.Error{StatusCode: 400, Message: "bad request"} }

func mustEngine(t *testing.T) *rules.Engine {
	t.Helper()
	e, err := rules.LoadEmbedded()
	require.NoError(t, err)
	return e
}

func addUser(t *testing.T, s *memory.Store, name string) core.User {
	t.Helper()
	u := core.User{ID: uuid.NewString(), Username: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func addExpense(t *testing.T, s *memory.Store, owner core.User, amount, category, date string) core.Expense {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	e := core.Expense{
		ID:       uuid.NewString(),
		OwnerID:  owner.ID,
		Amount:   dec(amount),
		Category: category,
		Date:     d,
		Currency: core.DefaultCurrency,
	}
	require.NoError(t, s.SaveExpense(context.Background(), e))
	return e
}

func addBudget(t *testing.T, s *memory.Store, owner core.User, category, month, limit string) {
	t.Helper()
	m, err := core.ParseMonth(month)
	require.NoError(t, err)
	_, err = s.UpsertBudget(context.Background(), core.Budget{
		ID:       uuid.NewString(),
		OwnerID:  owner.ID,
		Category: category,
		Month:    m,
		Limit:    dec(limit),
	})
	require.NoError(t, err)
}

func mustMonth(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

// alertRecorder collects alerts sent to it.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []BudgetAlert
	err    error
}

func (r *alertRecorder) SendBudgetAlert(_ context.Context, a BudgetAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *alertRecorder) All() []BudgetAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BudgetAlert(nil), r.alerts...)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
