// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, listing filters and month parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
	"spendwise/internal/csvio"
	"spendwise/internal/ports"
	"spendwise/internal/services"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 8 << 20
)

// badRequestError marks malformed input that never reached validation.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: fmt.Errorf(format, args...)}
}

// decodeJSON reads exactly one JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body: %v", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON value")
	}
	return nil
}

// expenseRequest is the wire form of an expense write.
type expenseRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Date          core.Date       `json:"date"`
	PaymentMethod string          `json:"paymentMethod"`
	Currency      string          `json:"currency"`
}

func (e expenseRequest) input() services.ExpenseInput {
	return services.ExpenseInput{
		Amount:        e.Amount,
		Category:      sanitizeInput(e.Category),
		Description:   sanitizeInput(e.Description),
		Date:          e.Date,
		PaymentMethod: sanitizeInput(e.PaymentMethod),
		Currency:      sanitizeInput(e.Currency),
	}
}

// rowInputs converts parsed upload rows into service inputs.
func rowInputs(rows []csvio.ExpenseRow) []services.ExpenseInput {
	out := make([]services.ExpenseInput, len(rows))
	for i, row := range rows {
		out[i] = services.ExpenseInput{
			Amount:        row.Amount,
			Category:      sanitizeInput(row.Category),
			Description:   sanitizeInput(row.Description),
			Date:          row.Date,
			PaymentMethod: sanitizeInput(row.PaymentMethod),
			Currency:      sanitizeInput(row.Currency),
		}
	}
	return out
}

type budgetRequest struct {
	Category string          `json:"category"`
	Month    string          `json:"month"`
	Limit    decimal.Decimal `json:"limit"`
}

type userRequest struct {
	Username string `json:"username"`
}

type categorizeRequest struct {
	Description string `json:"description"`
}

// ParseExpenseFilter reads listing criteria from query parameters. Unknown
// parameters are ignored; malformed values are rejected.
func ParseExpenseFilter(query url.Values) (ports.ExpenseFilter, error) {
	f := ports.ExpenseFilter{
		Category:    sanitizeInput(query.Get("category")),
		Description: sanitizeInput(query.Get("description")),
	}

	var err error
	if f.StartDate, err = optionalDate(query, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = optionalDate(query, "endDate"); err != nil {
		return f, err
	}
	if f.MinAmount, err = optionalAmount(query, "minAmount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = optionalAmount(query, "maxAmount"); err != nil {
		return f, err
	}
	if f.Page, err = optionalInt(query, "page"); err != nil {
		return f, err
	}
	if f.Size, err = optionalInt(query, "size"); err != nil {
		return f, err
	}
	return f.Normalize(), nil
}

func optionalDate(query url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("invalid %s %q: want YYYY-MM-DD", key, v)
	}
	return d, nil
}

func optionalAmount(query url.Values, key string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, badRequest("invalid %s %q", key, v)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func optionalInt(query url.Values, key string) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid %s %q", key, v)
	}
	return n, nil
}

// ParseMonthParam reads the month query parameter, defaulting to the month
// containing now.
func ParseMonthParam(query url.Values, now time.Time) (core.Month, error) {
	v := strings.TrimSpace(query.Get("month"))
	if v == "" {
		return core.MonthOf(now), nil
	}
	return core.ParseMonth(v)
}

// uploadReader returns the CSV stream of an upload request: the "file" part
// of a multipart form or the raw body otherwise.
func uploadReader(w http.ResponseWriter, r *http.Request) (io.Reader, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBody); err != nil {
			return nil, nil, badRequest("invalid multipart upload: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, badRequest("missing upload field \"file\"")
		}
		return file, func() { file.Close() }, nil
	}
	return r.Body, func() {}, nil
}
