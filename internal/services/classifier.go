package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/retry"
	"spendwise/internal/rules"
)

const (
	classifySystemPrompt = "You are a financial assistant. Categorize the given expense description into one of these: " +
		"Food, Groceries, Transport, Shopping, Entertainment, Housing, Utilities, Health, Education, Other. " +
		"Return ONLY the category name."
	classifyUserPrompt = "Description: %s"
)

// Completer is an external chat-completion endpoint. Configured reports
// whether a usable credential is present; Complete is never called otherwise.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, system, user string) (string, error)
}

// ClassifyRetryPolicy allows three attempts with 1s then 2s between them.
var ClassifyRetryPolicy = retry.Policy{
	Attempts:      3,
	InitialDelay:  time.Second,
	BackoffFactor: 2,
}

// Classifier assigns a category to a free-text description. Keyword rules are
// tried first, then the external completer. It never fails: anything that
// cannot be classified is "Other".
type Classifier struct {
	rules     *rules.Engine
	completer Completer
	policy    retry.Policy
}

type ClassifierOption func(*Classifier)

// WithClassifyRetryPolicy overrides the retry policy of external calls.
func WithClassifyRetryPolicy(p retry.Policy) ClassifierOption {
	return func(c *Classifier) { c.policy = p }
}

// NewClassifier builds a classifier. completer may be nil, in which case only
// keyword rules apply.
func NewClassifier(engine *rules.Engine, completer Completer, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		rules:     engine,
		completer: completer,
		policy:    ClassifyRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categorize returns the category for description.
func (c *Classifier) Categorize(ctx context.Context, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return core.CategoryOther
	}

	if c.rules != nil {
		if category, ok := c.rules.Match(description); ok {
			slog.DebugContext(ctx, "Classified by keyword",
				applog.FieldComponent, applog.ComponentClassifier,
				applog.FieldCategory, category)
			return category
		}
	}

	if c.completer == nil || !c.completer.Configured() {
		return core.CategoryOther
	}

	attempts := 0
	answer, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		attempts++
		return c.completer.Complete(ctx, classifySystemPrompt, fmt.Sprintf(classifyUserPrompt, description))
	})
	if err != nil {
		slog.WarnContext(ctx, "External classification failed, using fallback category",
			applog.FieldComponent, applog.ComponentClassifier,
			applog.FieldOperation, applog.OpClassify,
			applog.FieldAttempts, attempts,
			applog.FieldErrorType, applog.ErrorTypeExternal,
			applog.FieldError, err)
		return core.CategoryOther
	}

	category, ok := core.CanonicalCategory(answer)
	if !ok {
		slog.WarnContext(ctx, "External classifier answered outside the category set",
			applog.FieldComponent, applog.ComponentClassifier,
			"answer", answer)
		return core.CategoryOther
	}
	return category
}
