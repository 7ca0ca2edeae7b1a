/**
 * @description
 * Scheduled job implementations. The sweeps make the time-driven behavior
 * independent of read traffic: overdue subscriptions settle, reminders go
 * out, and stale payment intents expire even if nobody touches them.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipomarket/settlement-service/internal/domain"
)

// SubscriptionSweeper defines the subscription operations the jobs need.
type SubscriptionSweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
	DueReminders(ctx context.Context, now time.Time) ([]domain.ReminderPayload, error)
}

// IntentExpirer defines the payment operations the jobs need.
type IntentExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	subs     SubscriptionSweeper
	payments IntentExpirer
	logger   *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(subs SubscriptionSweeper, payments IntentExpirer, logger *slog.Logger) *Jobs {
	return &Jobs{subs: subs, payments: payments, logger: logger}
}

// ProcessSubscriptionSweep settles every overdue trial and lapsed period.
func (j *Jobs) ProcessSubscriptionSweep() {
	j.logger.Info("starting subscription overdue sweep")
	ctx := context.Background()

	transitioned, err := j.subs.SweepOverdue(ctx, time.Now())
	if err != nil {
		j.logger.Error("subscription sweep failed", "error", err)
		return
	}

	j.logger.Info("subscription overdue sweep finished", "transitioned", transitioned)
}

// ProcessRenewalReminders sends due renewal reminders.
func (j *Jobs) ProcessRenewalReminders() {
	j.logger.Info("starting renewal reminder job")
	ctx := context.Background()

	sent, err := j.subs.DueReminders(ctx, time.Now())
	if err != nil {
		j.logger.Error("renewal reminder job failed", "error", err)
		return
	}

	j.logger.Info("renewal reminder job finished", "sent", len(sent))
}

// ProcessIntentExpiry cancels pending payment intents past their expiry.
func (j *Jobs) ProcessIntentExpiry() {
	j.logger.Info("starting payment intent expiry job")
	ctx := context.Background()

	cancelled, err := j.payments.ExpireOverdue(ctx, time.Now())
	if err != nil {
		j.logger.Error("payment intent expiry job failed", "error", err)
		return
	}

	j.logger.Info("payment intent expiry job finished", "cancelled", cancelled)
}
