package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
	"spendwise/internal/retry"
)

// Fixed narratives returned when no summary can be generated. They are never
// stored, so a later call may still produce a real summary.
const (
	NarrativeNotConfigured = "AI summary not available."
	NarrativeFailed        = "Insight generation failed or took too long."
)

const (
	summarySystemPrompt = "You are a financial advisor. Provide short, concise spending analysis."
	summaryUserPrompt   = "Analyze my spending for this month. Total: %s. Previous Month: %s. Change: %s%%. " +
		"Breakdown: %s. Provide 2-3 brief, helpful observations."
)

// SummaryRetryPolicy allows three attempts with 2s then 4s between them.
var SummaryRetryPolicy = retry.Policy{
	Attempts:      3,
	InitialDelay:  2 * time.Second,
	BackoffFactor: 2,
}

// generationTimeout bounds one shared narrative generation, retries included.
const generationTimeout = 2 * time.Minute

var hundred = decimal.NewFromInt(100)

// InsightAggregator computes monthly insights from an owner's expense history
// and manages the write-once narrative for each (owner, month).
type InsightAggregator struct {
	users     ports.UserStore
	expenses  ports.ExpenseStore
	snapshots ports.SnapshotStore
	completer Completer
	policy    retry.Policy
	group     singleflight.Group
	now       func() time.Time
}

type InsightOption func(*InsightAggregator)

// WithSummaryRetryPolicy overrides the retry policy of narrative generation.
func WithSummaryRetryPolicy(p retry.Policy) InsightOption {
	return func(a *InsightAggregator) { a.policy = p }
}

// WithInsightClock overrides the clock used for snapshot timestamps.
func WithInsightClock(now func() time.Time) InsightOption {
	return func(a *InsightAggregator) { a.now = now }
}

func NewInsightAggregator(users ports.UserStore, expenses ports.ExpenseStore, snapshots ports.SnapshotStore, completer Completer, opts ...InsightOption) *InsightAggregator {
	a := &InsightAggregator{
		users:     users,
		expenses:  expenses,
		snapshots: snapshots,
		completer: completer,
		policy:    SummaryRetryPolicy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ComputeMonthlyInsight builds the summary of month for username. Only an
// unknown user or a storage failure is returned as an error; narrative
// problems degrade to a fixed fallback text.
func (a *InsightAggregator) ComputeMonthlyInsight(ctx context.Context, username string, month core.Month) (core.InsightResult, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return core.InsightResult{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return a.ComputeForUser(ctx, user, month)
}

// ComputeForUser is ComputeMonthlyInsight for an already resolved user.
func (a *InsightAggregator) ComputeForUser(ctx context.Context, user core.User, month core.Month) (core.InsightResult, error) {
	history, err := a.expenses.ListExpenses(ctx, user.ID)
	if err != nil {
		return core.InsightResult{}, fmt.Errorf("list expenses: %w", err)
	}

	result := Aggregate(history, month)

	narrative, err := a.narrative(ctx, user, result)
	if err != nil {
		return core.InsightResult{}, err
	}
	result.Narrative = narrative
	return result, nil
}

// Aggregate computes every numeric part of the insight for month from the
// owner's full history. The narrative is left empty.
func Aggregate(history []core.Expense, month core.Month) core.InsightResult {
	prevMonth := month.Prev()
	result := core.InsightResult{
		Month:              month,
		CategoryTotals:     make(map[string]decimal.Decimal),
		TotalSpending:      decimal.Zero,
		PreviousMonthTotal: decimal.Zero,
		DailySpending:      make(map[core.Date]decimal.Decimal),
		WeeklySpending:     make(map[int]decimal.Decimal),
	}

	for _, e := range history {
		if e.Deleted {
			continue
		}
		switch core.MonthOf(e.Date.Time) {
		case month:
			result.TotalSpending = result.TotalSpending.Add(e.Amount)
			result.CategoryTotals[e.Category] = result.CategoryTotals[e.Category].Add(e.Amount)
			result.DailySpending[e.Date] = result.DailySpending[e.Date].Add(e.Amount)
			week := e.Date.WeekOfMonth()
			result.WeeklySpending[week] = result.WeeklySpending[week].Add(e.Amount)
		case prevMonth:
			result.PreviousMonthTotal = result.PreviousMonthTotal.Add(e.Amount)
		}
	}

	result.MonthOverMonthPercent = MonthOverMonthPercent(result.TotalSpending, result.PreviousMonthTotal)
	return result
}

// MonthOverMonthPercent is (total-previous)/previous rounded half-up to four
// decimals, then scaled to a percentage. It is zero when previous is not
// positive.
func MonthOverMonthPercent(total, previous decimal.Decimal) decimal.Decimal {
	if !previous.IsPositive() {
		return decimal.Zero
	}
	return total.Sub(previous).DivRound(previous, 4).Mul(hundred)
}

func (a *InsightAggregator) narrative(ctx context.Context, user core.User, result core.InsightResult) (string, error) {
	snap, err := a.snapshots.GetSnapshot(ctx, user.ID, result.Month)
	if err == nil {
		return snap.Narrative, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return "", fmt.Errorf("get snapshot: %w", err)
	}

	if a.completer == nil || !a.completer.Configured() {
		return NarrativeNotConfigured, nil
	}

	// The shared run outlives any single caller; each caller only stops
	// waiting when its own context ends.
	key := snapshotKey(user.ID, result.Month)
	ch := a.group.DoChan(key, func() (any, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
		defer cancel()
		return a.generate(genCtx, user, result), nil
	})
	select {
	case res := <-ch:
		return res.Val.(string), nil
	case <-ctx.Done():
		return NarrativeFailed, nil
	}
}

// generate calls the summarizer and stores the narrative. When another writer
// stored one first, that narrative wins.
func (a *InsightAggregator) generate(ctx context.Context, user core.User, result core.InsightResult) string {
	prompt := fmt.Sprintf(summaryUserPrompt,
		core.FormatAmount(result.TotalSpending),
		core.FormatAmount(result.PreviousMonthTotal),
		result.MonthOverMonthPercent.StringFixed(2),
		breakdown(result))

	attempts := 0
	text, err := retry.Do(ctx, a.policy, func(ctx context.Context) (string, error) {
		attempts++
		return a.completer.Complete(ctx, summarySystemPrompt, prompt)
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		slog.WarnContext(ctx, "Narrative generation failed",
			applog.FieldComponent, applog.ComponentInsight,
			applog.FieldOperation, applog.OpSummarize,
			applog.FieldOwner, user.Username,
			applog.FieldMonth, result.Month.String(),
			applog.FieldAttempts, attempts,
			applog.FieldErrorType, applog.ErrorTypeExternal,
			applog.FieldError, err)
		return NarrativeFailed
	}

	snap := core.InsightSnapshot{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Month:     result.Month,
		Narrative: text,
		CreatedAt: a.now().UTC(),
	}
	err = a.snapshots.SaveSnapshot(ctx, snap)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Stored insight narrative",
			applog.FieldComponent, applog.ComponentInsight,
			applog.FieldOwner, user.Username,
			applog.FieldMonth, result.Month.String())
		return text
	case errors.Is(err, core.ErrConflict):
		stored, getErr := a.snapshots.GetSnapshot(ctx, user.ID, result.Month)
		if getErr == nil {
			slog.DebugContext(ctx, "Narrative already stored by another writer",
				applog.FieldComponent, applog.ComponentInsight,
				applog.FieldOwner, user.Username,
				applog.FieldMonth, result.Month.String())
			return stored.Narrative
		}
		return text
	default:
		slog.ErrorContext(ctx, "Failed to store insight narrative",
			applog.FieldComponent, applog.ComponentInsight,
			applog.FieldOwner, user.Username,
			applog.FieldMonth, result.Month.String(),
			applog.FieldError, err)
		return text
	}
}

func breakdown(result core.InsightResult) string {
	cats := result.SortedCategories()
	if len(cats) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, c.Name+": "+core.FormatAmount(c.Amount))
	}
	return strings.Join(parts, ", ")
}
