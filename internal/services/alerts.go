package services

import (
	"context"
	"log/slog"

	"spendwise/internal/amqp"
	applog "spendwise/internal/log"
)

// BudgetAlertPublisher is satisfied by *amqp.Client.
type BudgetAlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// NewQueueAlertSink routes alerts to a message queue.
func NewQueueAlertSink(p BudgetAlertPublisher) AlertSink {
	return AlertSinkFunc(func(ctx context.Context, a BudgetAlert) error {
		msg := amqp.NewBudgetAlertMessage(a.Owner, a.Category, a.Month.String(), a.Limit, a.Spent, a.Level.String())
		return p.PublishBudgetAlert(ctx, msg)
	})
}

// LogAlertSink only records that an alert had nowhere to go.
var LogAlertSink = AlertSinkFunc(func(ctx context.Context, a BudgetAlert) error {
	slog.DebugContext(ctx, "No alert queue configured, alert kept in logs only",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOwner, a.Owner,
		applog.FieldLevel, a.Level.String())
	return nil
})
