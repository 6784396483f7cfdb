package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentIsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: "app"}).WithComponent(ComponentBudget)

	logger.Info("Budget warning", FieldCategory, "Food")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=budget") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: FormatJSON, Output: &buf, Component: ComponentWorker})

	logger.Info("Skipped below level")
	logger.Warn("Report run failed", FieldMonth, "2024-03")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %s", len(lines), buf.String())
	}
	for _, want := range []string{`"msg":"Report run failed"`, `"component":"worker"`, `"month":"2024-03"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("record %s missing %s", lines[0], want)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentHTTP})

	handler := Middleware(logger, func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "handled")
		}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Fatalf("request id missing: %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected default logger, got %+v", l)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithError(errors.New("boom")).WithErrorType(ErrorTypeExternal).WithOperation(OpSummarize)
	if f[FieldError] != "boom" || f[FieldErrorType] != ErrorTypeExternal || f[FieldOperation] != OpSummarize {
		t.Fatalf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 6 {
		t.Fatalf("expected 6 slice entries, got %d", len(f.ToSlice()))
	}
	if NewFields().WithError(nil)[FieldError] != nil {
		t.Fatalf("nil error must not be recorded")
	}
}

func TestLogErrorUsesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentHTTP})

	NewStructuredLogger(logger).LogError(context.Background(), "Export failed", errors.New("quota"), ComponentSheets, OpExport, nil)

	out := buf.String()
	for _, want := range []string{"component=sheets", "operation=export", "error=quota"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component logged more than once: %s", out)
	}
}
