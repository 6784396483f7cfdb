package http

import (
	"errors"
	"net/http"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/csvio"
	applog "spendwise/internal/log"
)

// UserHeader carries the caller's username.
const UserHeader = "X-User"

var errMissingUser = errors.New("missing " + UserHeader + " header")

// caller returns the username the request acts for.
func caller(r *http.Request) (string, error) {
	u := strings.TrimSpace(r.Header.Get(UserHeader))
	if u == "" {
		return "", errMissingUser
	}
	return u, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// writeError maps a service error onto a status code and JSON body.
// Unexpected errors are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequestError
	var rowErr *csvio.RowError
	switch {
	case errors.Is(err, errMissingUser):
		ErrorResponse(http.StatusUnauthorized, err.Error()).Write(w)
	case errors.As(err, &bad):
		BadRequestError(bad.Error()).Write(w)
	case errors.As(err, &rowErr),
		errors.Is(err, csvio.ErrEmptyUpload),
		errors.Is(err, csvio.ErrMissingColumn),
		errors.Is(err, csvio.ErrTooManyRows):
		ErrorResponse(http.StatusUnprocessableEntity, err.Error()).Write(w)
	case core.IsValidation(err):
		ValidationErrorResponse(err).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, core.ErrForbidden):
		ErrorResponse(http.StatusForbidden, "forbidden").Write(w)
	case errors.Is(err, core.ErrConflict):
		ErrorResponse(http.StatusConflict, err.Error()).Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError("internal error").Write(w)
	}
}
