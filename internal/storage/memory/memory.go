// Package memory is an in-process implementation of the storage ports. It
// backs the memory data backend and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type budgetKey struct {
	owner    string
	category string
	month    core.Month
}

type snapshotKey struct {
	owner string
	month core.Month
}

type Store struct {
	mu        sync.Mutex
	users     map[string]core.User
	expenses  map[string]core.Expense
	budgets   map[budgetKey]core.Budget
	snapshots map[snapshotKey]core.InsightSnapshot
	now       func() time.Time
}

func New() *Store {
	return &Store{
		users:     make(map[string]core.User),
		expenses:  make(map[string]core.Expense),
		budgets:   make(map[budgetKey]core.Budget),
		snapshots: make(map[snapshotKey]core.InsightSnapshot),
		now:       time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return core.ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) SaveExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putExpense(e)
	return nil
}

func (s *Store) SaveExpenses(_ context.Context, es []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range es {
		s.putExpense(e)
	}
	return nil
}

func (s *Store) putExpense(e core.Expense) {
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.expenses[e.ID] = e
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[e.ID]
	if !ok || existing.Deleted {
		return core.ErrNotFound
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = s.now()
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.Deleted {
		return core.Expense{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) SoftDeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.Deleted {
		return core.ErrNotFound
	}
	e.Deleted = true
	e.UpdatedAt = s.now()
	s.expenses[id] = e
	return nil
}

func (s *Store) ListExpenses(_ context.Context, ownerID string) ([]core.Expense, error) {
	return s.collect(func(e core.Expense) bool { return e.OwnerID == ownerID }), nil
}

func (s *Store) ListExpensesByMonth(_ context.Context, ownerID string, month core.Month) ([]core.Expense, error) {
	return s.collect(func(e core.Expense) bool {
		return e.OwnerID == ownerID && month.Contains(e.Date)
	}), nil
}

func (s *Store) ListExpensesByCategoryMonth(_ context.Context, ownerID, category string, month core.Month) ([]core.Expense, error) {
	return s.collect(func(e core.Expense) bool {
		return e.OwnerID == ownerID && e.Category == category && month.Contains(e.Date)
	}), nil
}

func (s *Store) FilterExpenses(_ context.Context, ownerID string, f ports.ExpenseFilter) (ports.ExpensePage, error) {
	f = f.Normalize()
	desc := strings.ToLower(strings.TrimSpace(f.Description))
	matched := s.collect(func(e core.Expense) bool {
		if e.OwnerID != ownerID {
			return false
		}
		if f.Category != "" && e.Category != f.Category {
			return false
		}
		if !f.StartDate.IsZero() && e.Date.Before(f.StartDate.Time) {
			return false
		}
		if !f.EndDate.IsZero() && e.Date.After(f.EndDate.Time) {
			return false
		}
		if f.MinAmount.Valid && e.Amount.LessThan(f.MinAmount.Decimal) {
			return false
		}
		if f.MaxAmount.Valid && e.Amount.GreaterThan(f.MaxAmount.Decimal) {
			return false
		}
		if desc != "" && !strings.Contains(strings.ToLower(e.Description), desc) {
			return false
		}
		return true
	})

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date.Time) {
			return matched[i].Date.After(matched[j].Date.Time)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := ports.ExpensePage{Total: len(matched), Page: f.Page, Size: f.Size, Items: []core.Expense{}}
	start := f.Offset()
	if start < len(matched) {
		end := min(start+f.Size, len(matched))
		page.Items = matched[start:end]
	}
	return page, nil
}

// collect returns non-deleted expenses accepted by keep, ordered by date
// then creation time.
func (s *Store) collect(keep func(core.Expense) bool) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if !e.Deleted && keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetBudget(_ context.Context, ownerID, category string, month core.Month) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetKey{ownerID, category, month}]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{b.OwnerID, b.Category, b.Month}
	if existing, ok := s.budgets[key]; ok {
		b.ID = existing.ID
	}
	b.UpdatedAt = s.now()
	s.budgets[key] = b
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, ownerID string) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month.String() > out[j].Month.String()
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) GetSnapshot(_ context.Context, ownerID string, month core.Month) (core.InsightSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[snapshotKey{ownerID, month}]
	if !ok {
		return core.InsightSnapshot{}, core.ErrNotFound
	}
	return snap, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap core.InsightSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{snap.OwnerID, snap.Month}
	if _, exists := s.snapshots[key]; exists {
		return core.ErrConflict
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}
	s.snapshots[key] = snap
	return nil
}
