/**
 * @description
 * Cron scheduler setup for the settlement sweeps.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/pipomarket/settlement-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SubscriptionSweepSchedule, s.jobs.ProcessSubscriptionSweep); err != nil {
		s.logger.Error("failed to schedule subscription sweep", "error", err)
	} else {
		s.logger.Info("scheduled subscription sweep", "schedule", s.config.SubscriptionSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReminderJobSchedule, s.jobs.ProcessRenewalReminders); err != nil {
		s.logger.Error("failed to schedule renewal reminder job", "error", err)
	} else {
		s.logger.Info("scheduled renewal reminder job", "schedule", s.config.ReminderJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.IntentExpirySchedule, s.jobs.ProcessIntentExpiry); err != nil {
		s.logger.Error("failed to schedule payment intent expiry job", "error", err)
	} else {
		s.logger.Info("scheduled payment intent expiry job", "schedule", s.config.IntentExpirySchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
