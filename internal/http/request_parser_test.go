package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

func TestParseExpenseFilter(t *testing.T) {
	q := url.Values{}
	q.Set("category", " Food ")
	q.Set("startDate", "2024-03-01")
	q.Set("endDate", "2024-03-31")
	q.Set("minAmount", "10")
	q.Set("maxAmount", "99.5")
	q.Set("description", "lunch")
	q.Set("page", "2")
	q.Set("size", "500")

	f, err := ParseExpenseFilter(q)
	if err != nil {
		t.Fatalf("ParseExpenseFilter() error = %v", err)
	}
	if f.Category != "Food" {
		t.Errorf("Category = %q, want Food", f.Category)
	}
	if !f.StartDate.Equal(core.NewDate(2024, 3, 1).Time) || !f.EndDate.Equal(core.NewDate(2024, 3, 31).Time) {
		t.Errorf("dates = %v..%v", f.StartDate, f.EndDate)
	}
	if !f.MinAmount.Valid || f.MinAmount.Decimal.String() != "10" {
		t.Errorf("MinAmount = %v", f.MinAmount)
	}
	if !f.MaxAmount.Valid || f.MaxAmount.Decimal.String() != "99.5" {
		t.Errorf("MaxAmount = %v", f.MaxAmount)
	}
	if f.Page != 2 {
		t.Errorf("Page = %d, want 2", f.Page)
	}
	if f.Size != ports.MaxPageSize {
		t.Errorf("Size = %d, want %d", f.Size, ports.MaxPageSize)
	}
}

func TestParseExpenseFilter_Defaults(t *testing.T) {
	f, err := ParseExpenseFilter(url.Values{})
	if err != nil {
		t.Fatalf("ParseExpenseFilter() error = %v", err)
	}
	if f.MinAmount.Valid || f.MaxAmount.Valid || !f.StartDate.IsZero() {
		t.Errorf("expected empty criteria, got %+v", f)
	}
	if f.Page != 0 || f.Size != ports.DefaultPageSize {
		t.Errorf("paging = %d/%d", f.Page, f.Size)
	}
}

func TestParseExpenseFilter_Invalid(t *testing.T) {
	tests := map[string]string{
		"startDate": "01/03/2024",
		"endDate":   "tomorrow",
		"minAmount": "ten",
		"maxAmount": "1e",
		"page":      "first",
		"size":      "big",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			q := url.Values{}
			q.Set(key, value)
			_, err := ParseExpenseFilter(q)
			var bad *badRequestError
			if !errors.As(err, &bad) {
				t.Fatalf("expected bad request error, got %v", err)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error %q should name %s", err, key)
			}
		})
	}
}

func TestParseMonthParam(t *testing.T) {
	now := time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC)

	m, err := ParseMonthParam(url.Values{}, now)
	if err != nil || m != core.NewMonth(2024, time.July) {
		t.Errorf("default month = %v, %v", m, err)
	}

	m, err = ParseMonthParam(url.Values{"month": {"2023-12"}}, now)
	if err != nil || m != core.NewMonth(2023, time.December) {
		t.Errorf("explicit month = %v, %v", m, err)
	}

	if _, err := ParseMonthParam(url.Values{"month": {"12-2023"}}, now); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"username":"alice"}`, false},
		{"empty", ``, true},
		{"malformed", `{"username":`, true},
		{"trailing value", `{"username":"a"} {"username":"b"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst userRequest
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && dst.Username != "alice" {
				t.Errorf("Username = %q", dst.Username)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  hello  ", "hello"},
		{"hello\x00world", "helloworld"},
		{"tab\there", "tab\there"},
		{"line\nbreak", "line\nbreak"},
		{"bell\x07", "bell"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.expected {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.7:5555", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:5555", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:5555", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:5555", "garbage", "10.0.0.2"},
		{"ipv6 loopback proxy", "[::1]:5555", "2001:db8::7", "2001:db8::7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuspiciousReason(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		agent   string
		flagged bool
	}{
		{"path traversal", http.MethodGet, "/api/v1/../.env", "", true},
		{"probe in query", http.MethodGet, "/api/v1/expenses?file=../../etc/passwd", "", true},
		{"scanner", http.MethodGet, "/healthz", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/healthz", "", true},
		{"plain api call", http.MethodGet, "/api/v1/expenses?category=Food", "curl/8.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.agent)
			if got := suspiciousReason(req) != ""; got != tt.flagged {
				t.Errorf("suspiciousReason() flagged = %v, want %v", got, tt.flagged)
			}
		})
	}
}
