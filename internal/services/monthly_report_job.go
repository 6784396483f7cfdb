package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/amqp"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
)

// ReportReadyPublisher is satisfied by *amqp.Client.
type ReportReadyPublisher interface {
	PublishReportReady(ctx context.Context, msg *amqp.ReportReadyMessage) error
}

// JobResult summarizes one run of the monthly report job.
type JobResult struct {
	Month     core.Month
	Users     int
	Succeeded int
	Failed    int
}

// MonthlyReportJob assembles last month's report for every user, warming the
// narrative cache, and hands each report to the configured sinks.
type MonthlyReportJob struct {
	users       ports.UserStore
	assembler   *ReportAssembler
	sinks       []ReportSink
	publisher   ReportReadyPublisher
	concurrency int
}

// NewMonthlyReportJob builds the job. publisher may be nil.
func NewMonthlyReportJob(users ports.UserStore, assembler *ReportAssembler, sinks []ReportSink, publisher ReportReadyPublisher, concurrency int) *MonthlyReportJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &MonthlyReportJob{
		users:       users,
		assembler:   assembler,
		sinks:       sinks,
		publisher:   publisher,
		concurrency: concurrency,
	}
}

// Run processes the month before now for all users. A failing user is logged
// and counted; only failing to list users aborts the run.
func (j *MonthlyReportJob) Run(ctx context.Context, now time.Time) (JobResult, error) {
	month := core.MonthOf(now.UTC()).Prev()
	result := JobResult{Month: month}

	users, err := j.users.ListUsers(ctx)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}
	result.Users = len(users)

	slog.InfoContext(ctx, "Monthly report job started",
		applog.FieldComponent, applog.ComponentReport,
		applog.FieldMonth, month.String(),
		"users", len(users))

	var succeeded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, u := range users {
		g.Go(func() error {
			if err := j.RunForUser(gctx, u, month); err != nil {
				failed.Add(1)
				slog.ErrorContext(gctx, "Monthly report failed for user",
					applog.FieldComponent, applog.ComponentReport,
					applog.FieldOwner, u.Username,
					applog.FieldMonth, month.String(),
					applog.FieldError, err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	slog.InfoContext(ctx, "Monthly report job finished",
		applog.FieldComponent, applog.ComponentReport,
		applog.FieldMonth, month.String(),
		"users", result.Users,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

// RunForUser assembles one report and delivers it. Sink and notification
// failures are logged; only assembly failures are returned.
func (j *MonthlyReportJob) RunForUser(ctx context.Context, user core.User, month core.Month) error {
	report, err := j.assembler.AssembleForUser(ctx, user, month)
	if err != nil {
		return err
	}

	var destinations []string
	for _, sink := range j.sinks {
		location, err := sink.Export(ctx, report)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export report",
				applog.FieldComponent, applog.ComponentReport,
				applog.FieldOperation, applog.OpExport,
				applog.FieldOwner, user.Username,
				applog.FieldMonth, month.String(),
				applog.FieldError, err)
			continue
		}
		destinations = append(destinations, location)
	}

	if j.publisher == nil {
		return nil
	}
	msg := amqp.NewReportReadyMessage(user.Username, month.String(), report.Insight.TotalSpending, report.Insight.Narrative, destinations)
	if err := j.publisher.PublishReportReady(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish report ready message",
			applog.FieldComponent, applog.ComponentReport,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldOwner, user.Username,
			applog.FieldError, err)
	}
	return nil
}

// HandleRequest serves an on-demand report request. Requests that can never
// succeed (unknown user, bad month) are logged and dropped by returning nil.
func (j *MonthlyReportJob) HandleRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error {
	month, err := core.ParseMonth(msg.Month)
	if err != nil {
		slog.WarnContext(ctx, "Dropping report request with invalid month",
			applog.FieldComponent, applog.ComponentReport,
			applog.FieldOwner, msg.Username,
			"month", msg.Month)
		return nil
	}
	user, err := j.users.GetUserByUsername(ctx, msg.Username)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Dropping report request for unknown user",
			applog.FieldComponent, applog.ComponentReport,
			applog.FieldOwner, msg.Username)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get user %q: %w", msg.Username, err)
	}
	return j.RunForUser(ctx, user, month)
}
