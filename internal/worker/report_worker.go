// Package worker drives the scheduled and on-demand monthly report runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spendwise/internal/amqp"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
)

// ReportRunner is satisfied by *services.MonthlyReportJob.
type ReportRunner interface {
	Run(ctx context.Context, now time.Time) (services.JobResult, error)
	HandleRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error
}

// RequestConsumer is satisfied by *amqp.Client.
type RequestConsumer interface {
	ConsumeReportRequests(ctx context.Context, handler func(context.Context, *amqp.ReportRequestMessage) error) error
}

// ReportWorker runs the report job whenever its schedule says it is due and
// serves on-demand requests from the queue.
type ReportWorker struct {
	job    ReportRunner
	due    services.DuenessChecker
	logger *applog.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func NewReportWorker(job ReportRunner, due services.DuenessChecker, logger *applog.Logger) *ReportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ReportWorker{
		job:    job,
		due:    due,
		logger: logger.WithComponent(applog.ComponentWorker),
		now:    time.Now,
	}
}

// LastRun returns the time of the last completed scheduled run, zero if none.
func (w *ReportWorker) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

// Tick runs the job if it is due. It reports whether a run happened.
// A run that could not list users leaves lastRun untouched so the next tick
// retries it.
func (w *ReportWorker) Tick(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !w.due.IsDue(w.lastRun, now) {
		return false, nil
	}

	result, err := w.job.Run(ctx, now)
	if err != nil {
		return true, fmt.Errorf("run monthly reports: %w", err)
	}
	w.lastRun = now
	w.logger.InfoContext(ctx, "Scheduled report run completed",
		applog.FieldMonth, result.Month.String(),
		"users", result.Users,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return true, nil
}

// Run checks the schedule at startup and then on every interval until ctx
// is done.
func (w *ReportWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.tickAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Report scheduler stopped")
			return
		case <-ticker.C:
			w.tickAndLog(ctx)
		}
	}
}

func (w *ReportWorker) tickAndLog(ctx context.Context) {
	if _, err := w.Tick(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Scheduled report run failed", applog.FieldError, err)
	}
}

// Consume serves report requests until ctx is done. Cancellation is not an
// error.
func (w *ReportWorker) Consume(ctx context.Context, consumer RequestConsumer) error {
	w.logger.InfoContext(ctx, "Consuming report requests")
	err := consumer.ConsumeReportRequests(ctx, w.job.HandleRequest)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume report requests: %w", err)
	}
	return nil
}
