package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an owner or entity does not exist. It is
	// the only failure the aggregation engine propagates to callers.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a caller acts on another owner's record.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned by stores when a unique key already exists.
	ErrConflict = errors.New("conflict")
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyUsername        = errors.New("empty username")
	ErrCategoryTooLong      = fmt.Errorf("category too long (max %d characters)", MaxCategoryLen)
	ErrDescriptionTooLong   = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLen)
	ErrPaymentMethodTooLong = fmt.Errorf("payment method too long (max %d characters)", MaxPaymentMethodLen)
	ErrCurrencyTooLong      = fmt.Errorf("currency too long (max %d characters)", MaxCurrencyLen)
)

// FieldError ties a validation failure to the input field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error { return e.Err }

// ValidationError collects every field problem of one input.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Add(field string, err error) {
	v.Fields = append(v.Fields, FieldError{Field: field, Err: err})
}

// Err returns nil when no field failed, otherwise the error itself.
func (v *ValidationError) Err() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match any of the underlying field errors.
func (v *ValidationError) Unwrap() []error {
	errs := make([]error, len(v.Fields))
	for i, f := range v.Fields {
		errs[i] = f.Err
	}
	return errs
}

// IsValidation reports whether err carries input validation failures.
func IsValidation(err error) bool {
	var v *ValidationError
	if errors.As(err, &v) {
		return true
	}
	return errors.Is(err, ErrInvalidMonth) || errors.Is(err, ErrInvalidDate) || errors.Is(err, ErrInvalidAmount)
}
