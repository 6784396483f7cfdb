package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is applied to expenses saved without a currency tag.
const DefaultCurrency = "USD"

// Field limits shared by validation and the storage schema.
const (
	MaxDescriptionLen   = 255
	MaxCategoryLen      = 50
	MaxPaymentMethodLen = 50
	MaxCurrencyLen      = 10
)

type (
	Date struct {
		time.Time
	}

	User struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Expense is owned by exactly one user. Deleted expenses are retained
	// but excluded from every read used for aggregation.
	Expense struct {
		ID            string          `json:"id"`
		OwnerID       string          `json:"-"`
		Amount        decimal.Decimal `json:"amount"`
		Category      string          `json:"category"`
		Description   string          `json:"description"`
		Date          Date            `json:"date"`
		PaymentMethod string          `json:"paymentMethod"`
		Currency      string          `json:"currency"` // opaque tag, never converted
		Deleted       bool            `json:"-"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// Budget is unique per (owner, category, month).
	Budget struct {
		ID        string          `json:"id"`
		OwnerID   string          `json:"-"`
		Category  string          `json:"category"`
		Month     Month           `json:"month"`
		Limit     decimal.Decimal `json:"limit"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// InsightSnapshot caches the narrative for one owner and month.
	// It is written at most once and never modified.
	InsightSnapshot struct {
		ID        string
		OwnerID   string
		Month     Month
		Narrative string
		CreatedAt time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding so dates travel as
// plain YYYY-MM-DD strings.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// WeekOfMonth returns the 1-based week bucket of the day of month:
// days 1-7 are week 1, 8-14 week 2, and so on up to 5.
func (d Date) WeekOfMonth() int {
	return (d.Day()-1)/7 + 1
}

// IsOther reports whether a category is empty or the catch-all "Other",
// which both mean the expense still needs classification.
func IsOther(category string) bool {
	c := strings.TrimSpace(category)
	return c == "" || strings.EqualFold(c, CategoryOther)
}

func (e Expense) Validate() error {
	var v ValidationError
	if !e.Amount.IsPositive() {
		v.Add("amount", ErrInvalidAmount)
	}
	if strings.TrimSpace(e.Category) == "" {
		v.Add("category", ErrEmptyCategory)
	} else if len(e.Category) > MaxCategoryLen {
		v.Add("category", ErrCategoryTooLong)
	}
	if len(e.Description) > MaxDescriptionLen {
		v.Add("description", ErrDescriptionTooLong)
	}
	if err := e.Date.Validate(); err != nil {
		v.Add("date", err)
	}
	if len(e.PaymentMethod) > MaxPaymentMethodLen {
		v.Add("paymentMethod", ErrPaymentMethodTooLong)
	}
	if len(e.Currency) > MaxCurrencyLen {
		v.Add("currency", ErrCurrencyTooLong)
	}
	return v.Err()
}

func (b Budget) Validate() error {
	var v ValidationError
	if strings.TrimSpace(b.Category) == "" {
		v.Add("category", ErrEmptyCategory)
	} else if len(b.Category) > MaxCategoryLen {
		v.Add("category", ErrCategoryTooLong)
	}
	if b.Month.IsZero() {
		v.Add("month", ErrInvalidMonth)
	}
	if !b.Limit.IsPositive() {
		v.Add("limit", ErrInvalidAmount)
	}
	return v.Err()
}
