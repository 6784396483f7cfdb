package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	"spendwise/internal/csvio"
	applog "spendwise/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.deps.Now().Format(time.RFC3339),
		"uptime":    s.deps.Now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]interface{}{"store": "ok"}

	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	if s.deps.CacheStats != nil {
		st := s.deps.CacheStats()
		checks["snapshot_cache"] = map[string]interface{}{
			"entries": st.Size,
			"status":  "ok",
		}
	}

	checks["report_requests"] = "not_configured"
	if s.deps.Requests != nil {
		checks["report_requests"] = "ok"
		if c, ok := s.deps.Requests.(interface{ IsConnected() bool }); ok && !c.IsConnected() {
			checks["report_requests"] = "disconnected"
		}
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]interface{}{
		"status":    status,
		"timestamp": s.deps.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides security and cache metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	hits, suspicious := s.metrics.snapshot()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", hits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", suspicious)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	tm := s.tracer.Snapshot()
	fmt.Fprintf(w, "# HELP http_requests_total Total HTTP requests served\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", tm.TotalRequests)

	fmt.Fprintf(w, "# HELP http_client_errors_total Responses with a 4xx status\n")
	fmt.Fprintf(w, "# TYPE http_client_errors_total counter\n")
	fmt.Fprintf(w, "http_client_errors_total %d\n\n", tm.ClientErrors)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", tm.ServerErrors)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_seconds Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_seconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_seconds %.6f\n\n", tm.AverageResponseTime.Seconds())

	if s.deps.CacheStats != nil {
		st := s.deps.CacheStats()
		fmt.Fprintf(w, "# HELP snapshot_cache_hits_total Narrative cache hits\n")
		fmt.Fprintf(w, "# TYPE snapshot_cache_hits_total counter\n")
		fmt.Fprintf(w, "snapshot_cache_hits_total %d\n\n", st.Hits)

		fmt.Fprintf(w, "# HELP snapshot_cache_misses_total Narrative cache misses\n")
		fmt.Fprintf(w, "# TYPE snapshot_cache_misses_total counter\n")
		fmt.Fprintf(w, "snapshot_cache_misses_total %d\n\n", st.Misses)

		fmt.Fprintf(w, "# HELP snapshot_cache_entries Current narrative cache entries\n")
		fmt.Fprintf(w, "# TYPE snapshot_cache_entries gauge\n")
		fmt.Fprintf(w, "snapshot_cache_entries %d\n\n", st.Size)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", s.deps.Now().Sub(s.started).Seconds())
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.deps.Users.Register(r.Context(), sanitizeInput(req.Username))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(u).Write(w)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.deps.Budgets.Set(r.Context(), username, sanitizeInput(req.Category), month, req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(b).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.deps.Budgets.List(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}
	NewJSONResponse().Body(budgets).Write(w)
}

// handleInsights returns the monthly insight, generating the narrative on
// first access.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := ParseMonthParam(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.Insights.ComputeMonthlyInsight(r.Context(), username, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(result).Write(w)
}

// handleReportCSV streams the month's report as a CSV download.
func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := ParseMonthParam(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.deps.Reports.Assemble(r.Context(), username, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := csvio.WriteReport(&buf, report); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvio.Filename(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleReportRequest queues report generation for the report worker.
func (s *Server) handleReportRequest(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Requests == nil {
		ErrorResponse(http.StatusServiceUnavailable, "report queue not configured").Write(w)
		return
	}
	month, err := ParseMonthParam(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Users.Resolve(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := amqp.NewReportRequestMessage(user.Username, month.String())
	if err := s.deps.Requests.PublishReportRequest(r.Context(), msg); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to queue report request",
			applog.FieldError, err,
			applog.FieldOwner, user.Username,
			applog.FieldMonth, month.String())
		ErrorResponse(http.StatusServiceUnavailable, "report queue unavailable").Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).Body(msg).Write(w)
}
