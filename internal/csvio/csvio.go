// Package csvio reads expense uploads and writes monthly reports as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// ReportHeader is the first line of every exported report.
var ReportHeader = []string{"Date", "Category", "Description", "Amount", "Payment Method"}

// MaxUploadRows bounds a single upload.
const MaxUploadRows = 5000

var (
	ErrEmptyUpload   = errors.New("csv upload is empty")
	ErrMissingColumn = errors.New("missing required column")
	ErrTooManyRows   = fmt.Errorf("csv upload exceeds %d rows", MaxUploadRows)
)

// ExpenseRow is one parsed upload line.
type ExpenseRow struct {
	Amount        decimal.Decimal
	Category      string
	Description   string
	Date          core.Date
	PaymentMethod string
	Currency      string
}

// RowError ties a parse failure to its 1-based line number, header included.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

const (
	colAmount        = "amount"
	colCategory      = "category"
	colDescription   = "description"
	colDate          = "date"
	colPaymentMethod = "paymentmethod"
	colCurrency      = "currency"
)

var requiredColumns = []string{colAmount, colCategory, colDescription, colDate, colPaymentMethod}

// normalizeHeader folds "Payment Method", "payment_method" and
// "paymentMethod" onto the same key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// ReadExpenses parses an upload with a header row naming the columns
// amount, category, description, date, paymentMethod and optionally currency,
// in any order. Blank lines are skipped.
func ReadExpenses(r io.Reader) ([]ExpenseRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyUpload
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ExpenseRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &RowError{Row: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rows) == MaxUploadRows {
			return nil, ErrTooManyRows
		}

		amount, err := core.ParseAmount(field(record, colAmount))
		if err != nil {
			return nil, &RowError{Row: line, Err: err}
		}
		date, err := core.ParseDate(field(record, colDate))
		if err != nil {
			return nil, &RowError{Row: line, Err: err}
		}
		rows = append(rows, ExpenseRow{
			Amount:        amount,
			Category:      field(record, colCategory),
			Description:   field(record, colDescription),
			Date:          date,
			PaymentMethod: field(record, colPaymentMethod),
			Currency:      field(record, colCurrency),
		})
	}

	if len(rows) == 0 {
		return nil, ErrEmptyUpload
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteReport writes the report's transactions, oldest first as assembled.
func WriteReport(w io.Writer, report core.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range report.Expenses {
		record := []string{
			e.Date.String(),
			e.Category,
			e.Description,
			core.FormatAmount(e.Amount),
			e.PaymentMethod,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Filename suggests a download name for a report.
func Filename(report core.Report) string {
	return fmt.Sprintf("report-%s-%s.csv", report.Owner, report.Month)
}
