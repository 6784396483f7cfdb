package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/rules"
	"spendwise/internal/services"
	"spendwise/internal/storage/memory"
)

var fixedNow = time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)

type fakeRequests struct {
	mu   sync.Mutex
	msgs []*amqp.ReportRequestMessage
	err  error
}

func (f *fakeRequests) PublishReportRequest(_ context.Context, msg *amqp.ReportRequestMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type testServer struct {
	srv      *Server
	store    *memory.Store
	requests *fakeRequests
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)

	classifier := services.NewClassifier(engine, nil)
	evaluator := services.NewBudgetEvaluator(store, store, store, services.LogAlertSink)
	insights := services.NewInsightAggregator(store, store, store, nil,
		services.WithInsightClock(func() time.Time { return fixedNow }))
	requests := &fakeRequests{}

	deps := Deps{
		Users:      services.NewUserService(store),
		Expenses:   services.NewExpenseService(store, store, classifier, evaluator),
		Budgets:    services.NewBudgetService(store, store),
		Classifier: classifier,
		Insights:   insights,
		Reports:    services.NewReportAssembler(store, store, insights),
		Requests:   requests,
		RateLimit:  1000,
		Now:        func() time.Time { return fixedNow },
	}
	srv := NewServer(":0", deps, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, store: store, requests: requests}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) register(t *testing.T, username string) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{"username": username})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestReadyReportsStoreFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.deps.Ready = func(context.Context) error { return errors.New("db down") }

	rr := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestMetricsCountRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/healthz", "", nil)
	ts.do(t, http.MethodGet, "/api/v1/budgets", "", nil)

	rr := ts.do(t, http.MethodGet, "/metrics", "", nil)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total 2\n")
	assert.Contains(t, body, "http_client_errors_total 1\n")
	assert.Contains(t, body, "rate_limit_hits_total 0\n")
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestRegisterUser(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	rr := ts.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/users", "", map[string]string{"username": "not valid!"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/users", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateExpenseClassifiesAndValidates(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	rr := ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", map[string]interface{}{
		"amount":      "250.00",
		"description": "Swiggy dinner",
		"date":        "2024-03-10",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	e := decode[core.Expense](t, rr)
	assert.Equal(t, "Food", e.Category)
	assert.Equal(t, "USD", e.Currency)
	assert.NotEmpty(t, e.ID)

	rr = ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", map[string]interface{}{
		"amount": "0",
		"date":   "2024-03-10",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode[errorBody](t, rr)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "amount", body.Fields[0].Field)

	rr = ts.do(t, http.MethodPost, "/api/v1/expenses", "", map[string]interface{}{"amount": "1"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/expenses", "nobody", map[string]interface{}{
		"amount": "1", "date": "2024-03-10", "category": "Food",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAndDeleteEnforceOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	ts.register(t, "bob")

	rr := ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", map[string]interface{}{
		"amount": "12.50", "category": "Transport", "description": "bus", "date": "2024-03-02",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[core.Expense](t, rr).ID

	update := map[string]interface{}{"amount": "15", "category": "Transport", "description": "taxi", "date": "2024-03-02"}
	rr = ts.do(t, http.MethodPut, "/api/v1/expenses/"+id, "bob", update)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPut, "/api/v1/expenses/"+id, "alice", update)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "taxi", decode[core.Expense](t, rr).Description)

	rr = ts.do(t, http.MethodDelete, "/api/v1/expenses/"+id, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/v1/expenses/"+id, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/v1/expenses/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBatchIsAtomic(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	rr := ts.do(t, http.MethodPost, "/api/v1/expenses/batch", "alice", []map[string]interface{}{
		{"amount": "10", "category": "Food", "date": "2024-03-01"},
		{"amount": "-1", "category": "Food", "date": "2024-03-01"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "expense 2")

	rr = ts.do(t, http.MethodGet, "/api/v1/expenses", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":0`)

	rr = ts.do(t, http.MethodPost, "/api/v1/expenses/batch", "alice", []map[string]interface{}{
		{"amount": "10", "category": "Food", "date": "2024-03-01"},
		{"amount": "20", "description": "uber ride", "date": "2024-03-02"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"created":2`)

	rr = ts.do(t, http.MethodPost, "/api/v1/expenses/batch", "alice", []map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	csvBody := "amount,category,description,date,paymentMethod\n" +
		"12.50,Food,lunch,2024-03-01,card\n" +
		"40,,Netflix subscription,2024-03-05,card\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "expenses.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte(csvBody))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, "alice")
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"created":2`)
	assert.Contains(t, rr.Body.String(), `"category":"Entertainment"`)

	// raw body, missing column
	req = httptest.NewRequest(http.MethodPost, "/api/v1/expenses/upload", strings.NewReader("amount,date\n1,2024-03-01\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set(UserHeader, "alice")
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListExpensesFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	for _, e := range []map[string]interface{}{
		{"amount": "10", "category": "Food", "description": "Lunch", "date": "2024-03-01"},
		{"amount": "50", "category": "Transport", "description": "Train", "date": "2024-03-05"},
		{"amount": "5", "category": "Food", "description": "Coffee", "date": "2024-02-27"},
	} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", e).Code)
	}

	rr := ts.do(t, http.MethodGet, "/api/v1/expenses?category=Food&startDate=2024-03-01", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[struct {
		Items []core.Expense `json:"items"`
		Total int            `json:"total"`
		Size  int            `json:"size"`
	}](t, rr)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 20, page.Size)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Lunch", page.Items[0].Description)

	rr = ts.do(t, http.MethodGet, "/api/v1/expenses?minAmount=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCategorize(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/categorize", "", map[string]string{"description": "Monthly RENT"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"category": "Housing"}, decode[map[string]string](t, rr))

	rr = ts.do(t, http.MethodPost, "/api/v1/categorize", "", map[string]string{"description": "something odd"})
	assert.Equal(t, "Other", decode[map[string]string](t, rr)["category"])
}

func TestBudgetsAndInsights(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	rr := ts.do(t, http.MethodPost, "/api/v1/budgets", "alice", map[string]interface{}{
		"category": "Food", "month": "2024-03", "limit": "100",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodPost, "/api/v1/budgets", "alice", map[string]interface{}{
		"category": "Food", "month": "March", "limit": "100",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/v1/budgets", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Budget](t, rr), 1)

	for _, e := range []map[string]interface{}{
		{"amount": "100", "category": "Food", "date": "2024-02-10"},
		{"amount": "150", "category": "Food", "date": "2024-03-10"},
	} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", e).Code)
	}

	rr = ts.do(t, http.MethodGet, "/api/v1/insights", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var insight struct {
		Month                 string `json:"month"`
		TotalSpending         string `json:"totalSpending"`
		MonthOverMonthPercent string `json:"monthOverMonthPercent"`
		Narrative             string `json:"narrative"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &insight))
	assert.Equal(t, "2024-03", insight.Month)
	assert.Equal(t, "150", insight.TotalSpending)
	assert.Equal(t, "50", insight.MonthOverMonthPercent)
	assert.Equal(t, services.NarrativeNotConfigured, insight.Narrative)

	rr = ts.do(t, http.MethodGet, "/api/v1/insights?month=2024-13", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestReportCSVAndRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/expenses", "alice", map[string]interface{}{
		"amount": "9.99", "category": "Shopping", "description": "cable, usb", "date": "2024-03-03",
	}).Code)

	rr := ts.do(t, http.MethodGet, "/api/v1/reports/csv?month=2024-03", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "report-alice-2024-03.csv")
	assert.Contains(t, rr.Body.String(), `2024-03-03,Shopping,"cable, usb",9.99,`)

	rr = ts.do(t, http.MethodPost, "/api/v1/reports/requests?month=2024-02", "alice", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, ts.requests.msgs, 1)
	assert.Equal(t, "alice", ts.requests.msgs[0].Username)
	assert.Equal(t, "2024-02", ts.requests.msgs[0].Month)

	ts.requests.err = errors.New("broker down")
	rr = ts.do(t, http.MethodPost, "/api/v1/reports/requests", "alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	ts.srv.deps.Requests = nil
	rr = ts.do(t, http.MethodPost, "/api/v1/reports/requests", "alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/v1/categorize", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.rateLimiter = newRateLimiter(2)
	t.Cleanup(ts.srv.rateLimiter.stop)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodPost, "/api/v1/categorize", "", map[string]string{"description": "rent"}).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// reads are never limited
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "", nil).Code)
}
