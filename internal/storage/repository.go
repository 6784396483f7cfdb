package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

var _ ports.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so every connection sees the schema
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.ID, u.Username, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrConflict
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, username, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const insertExpenseSQL = `INSERT INTO expenses
	(id, owner_id, amount_cents, category, description, date, month, payment_method, currency, deleted, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertExpense(ctx context.Context, x execer, e core.Expense) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	_, err := x.ExecContext(ctx, insertExpenseSQL,
		e.ID, e.OwnerID, toCents(e.Amount), e.Category, e.Description,
		e.Date.String(), core.MonthOf(e.Date.Time).String(),
		e.PaymentMethod, e.Currency, formatTime(e.CreatedAt), formatTime(now))
	return err
}

func (r *SQLiteRepository) SaveExpense(ctx context.Context, e core.Expense) error {
	if err := insertExpense(ctx, r.db, e); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"owner_id", e.OwnerID,
		"category", e.Category,
		"date", e.Date.String())
	return nil
}

func (r *SQLiteRepository) SaveExpenses(ctx context.Context, es []core.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, e := range es {
		if err := insertExpense(ctx, tx, e); err != nil {
			return fmt.Errorf("create expense %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expenses: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, category = ?, description = ?, date = ?, month = ?,
		 payment_method = ?, currency = ?, updated_at = ?
		 WHERE id = ? AND deleted = 0`,
		toCents(e.Amount), e.Category, e.Description, e.Date.String(), core.MonthOf(e.Date.Time).String(),
		e.PaymentMethod, e.Currency, formatTime(time.Now()), e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const expenseColumns = `id, owner_id, amount_cents, category, description, date, payment_method, currency, deleted, created_at, updated_at`

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND deleted = 0`, id)
	return scanExpense(row)
}

func (r *SQLiteRepository) SoftDeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("soft delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = ? AND deleted = 0 ORDER BY date, created_at, id`,
		ownerID)
}

func (r *SQLiteRepository) ListExpensesByMonth(ctx context.Context, ownerID string, month core.Month) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = ? AND month = ? AND deleted = 0 ORDER BY date, created_at, id`,
		ownerID, month.String())
}

func (r *SQLiteRepository) ListExpensesByCategoryMonth(ctx context.Context, ownerID, category string, month core.Month) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE owner_id = ? AND category = ? AND month = ? AND deleted = 0 ORDER BY date, created_at, id`,
		ownerID, category, month.String())
}

func (r *SQLiteRepository) FilterExpenses(ctx context.Context, ownerID string, f ports.ExpenseFilter) (ports.ExpensePage, error) {
	f = f.Normalize()

	where := []string{"owner_id = ?", "deleted = 0"}
	args := []any{ownerID}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.StartDate.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.StartDate.String())
	}
	if !f.EndDate.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.EndDate.String())
	}
	if f.MinAmount.Valid {
		where = append(where, "amount_cents >= ?")
		args = append(args, toCents(f.MinAmount.Decimal))
	}
	if f.MaxAmount.Valid {
		where = append(where, "amount_cents <= ?")
		args = append(args, toCents(f.MaxAmount.Decimal))
	}
	if desc := strings.TrimSpace(f.Description); desc != "" {
		where = append(where, `LOWER(description) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(desc))+"%")
	}
	clause := strings.Join(where, " AND ")

	page := ports.ExpensePage{Page: f.Page, Size: f.Size, Items: []core.Expense{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count expenses: %w", err)
	}

	items, err := r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE `+clause+` ORDER BY date DESC, created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Size, f.Offset())...)
	if err != nil {
		return page, err
	}
	if items != nil {
		page.Items = items
	}
	return page, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, ownerID, category string, month core.Month) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, category, month, limit_cents, updated_at FROM budgets
		 WHERE owner_id = ? AND category = ? AND month = ?`,
		ownerID, category, month.String())
	return scanBudget(row)
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, owner_id, category, month, limit_cents, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, category, month)
		 DO UPDATE SET limit_cents = excluded.limit_cents, updated_at = excluded.updated_at`,
		b.ID, b.OwnerID, b.Category, b.Month.String(), toCents(b.Limit), formatTime(time.Now()))
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return r.GetBudget(ctx, b.OwnerID, b.Category, b.Month)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, ownerID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, category, month, limit_cents, updated_at FROM budgets
		 WHERE owner_id = ? ORDER BY month DESC, category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetSnapshot(ctx context.Context, ownerID string, month core.Month) (core.InsightSnapshot, error) {
	var (
		s                 core.InsightSnapshot
		monthStr, created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, month, narrative, created_at FROM insight_snapshots WHERE owner_id = ? AND month = ?`,
		ownerID, month.String()).Scan(&s.ID, &s.OwnerID, &monthStr, &s.Narrative, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return s, core.ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("get snapshot: %w", err)
	}
	if s.Month, err = core.ParseMonth(monthStr); err != nil {
		return s, fmt.Errorf("parse snapshot month: %w", err)
	}
	s.CreatedAt = parseTime(created)
	return s, nil
}

// SaveSnapshot relies on the UNIQUE(owner_id, month) constraint: a losing
// concurrent writer inserts nothing and gets core.ErrConflict.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, s core.InsightSnapshot) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO insight_snapshots (id, owner_id, month, narrative, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(owner_id, month) DO NOTHING`,
		s.ID, s.OwnerID, s.Month.String(), s.Narrative, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrConflict
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := row.Scan(&u.ID, &u.Username, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return u, core.ErrNotFound
	}
	if err != nil {
		return u, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e                      core.Expense
		cents                  int64
		date, created, updated string
		deleted                int
	)
	err := row.Scan(&e.ID, &e.OwnerID, &cents, &e.Category, &e.Description, &date,
		&e.PaymentMethod, &e.Currency, &deleted, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return e, core.ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("scan expense: %w", err)
	}
	if e.Date, err = core.ParseDate(date); err != nil {
		return e, fmt.Errorf("parse expense date %q: %w", date, err)
	}
	e.Amount = fromCents(cents)
	e.Deleted = deleted != 0
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

func scanBudget(row scanner) (core.Budget, error) {
	var (
		b              core.Budget
		month, updated string
		cents          int64
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.Category, &month, &cents, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return b, core.ErrNotFound
	}
	if err != nil {
		return b, fmt.Errorf("scan budget: %w", err)
	}
	if b.Month, err = core.ParseMonth(month); err != nil {
		return b, fmt.Errorf("parse budget month: %w", err)
	}
	b.Limit = fromCents(cents)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

// toCents stores amounts as integer cents; amounts are rounded to two
// decimals before they reach the repository.
func toCents(d decimal.Decimal) int64 {
	return core.RoundAmount(d).Shift(2).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
