package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/cache"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/services"
)

// ReportRequester queues on-demand report generation. Satisfied by *amqp.Client.
type ReportRequester interface {
	PublishReportRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error
}

// Deps are the services the API serves. Requests, Ready and CacheStats may be nil.
type Deps struct {
	Users      *services.UserService
	Expenses   *services.ExpenseService
	Budgets    *services.BudgetService
	Classifier *services.Classifier
	Insights   *services.InsightAggregator
	Reports    *services.ReportAssembler
	Requests   ReportRequester
	Ready      func(ctx context.Context) error
	CacheStats func() cache.Stats
	RateLimit  int
	Now        func() time.Time
}

type Server struct {
	http.Server
	deps        Deps
	logger      *applog.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	tracer      *trace.Middleware
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, logger *applog.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		deps:        deps,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		rateLimiter: newRateLimiter(deps.RateLimit),
		metrics:     &securityMetrics{},
		tracer:      trace.NewMiddleware(),
		started:     deps.Now(),
	}
	s.Server = http.Server{
		Addr:           addr,
		Handler:        s.routes(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/v1/users", s.handleRegisterUser)

	mux.HandleFunc("POST /api/v1/expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /api/v1/expenses/batch", s.handleCreateBatch)
	mux.HandleFunc("POST /api/v1/expenses/upload", s.handleUpload)
	mux.HandleFunc("GET /api/v1/expenses", s.handleListExpenses)
	mux.HandleFunc("PUT /api/v1/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/v1/categorize", s.handleCategorize)

	mux.HandleFunc("POST /api/v1/budgets", s.handleSetBudget)
	mux.HandleFunc("GET /api/v1/budgets", s.handleListBudgets)

	mux.HandleFunc("GET /api/v1/insights", s.handleInsights)
	mux.HandleFunc("GET /api/v1/reports/csv", s.handleReportCSV)
	mux.HandleFunc("POST /api/v1/reports/requests", s.handleReportRequest)

	var h http.Handler = s.withSecurity(mux)
	h = applog.Middleware(s.logger, func(r *http.Request) string { return r.Header.Get(trace.RequestIDHeader) })(h)
	return s.tracer.Handler(h)
}

// withSecurity adds security headers, rate limiting of writes, suspicious
// request detection and request logging.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)
		sl := applog.NewStructuredLogger(applog.FromContext(ctx))

		sl.LogHTTPStart(ctx, r, clientIP)

		if reason := suspiciousReason(r); reason != "" {
			s.metrics.suspiciousRequests.Add(1)
			applog.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"reason", reason)
		}

		setSecurityHeaders(w)

		if r.Method != http.MethodGet && r.Method != http.MethodHead && !s.rateLimiter.allow(clientIP, s.metrics) {
			applog.FromContext(ctx).WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
			sl.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		sl.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		hits, suspicious := s.metrics.snapshot()
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			"rate_limit_hits", hits,
			"suspicious_requests", suspicious)
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
