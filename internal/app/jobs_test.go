package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pipomarket/settlement-service/internal/domain"
)

type sweeperStub struct {
	sweepCalled     bool
	sweepErr        error
	remindersCalled bool
	reminders       []domain.ReminderPayload
	remindersErr    error
}

func (s *sweeperStub) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	s.sweepCalled = true
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	return 2, nil
}

func (s *sweeperStub) DueReminders(ctx context.Context, now time.Time) ([]domain.ReminderPayload, error) {
	s.remindersCalled = true
	if s.remindersErr != nil {
		return nil, s.remindersErr
	}
	return s.reminders, nil
}

type expirerStub struct {
	called bool
	err    error
}

func (s *expirerStub) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	s.called = true
	if s.err != nil {
		return 0, s.err
	}
	return 1, nil
}

func TestProcessSubscriptionSweep_RunsSweep(t *testing.T) {
	sweeper := &sweeperStub{}
	jobs := NewJobs(sweeper, &expirerStub{}, testLogger())

	jobs.ProcessSubscriptionSweep()

	if !sweeper.sweepCalled {
		t.Fatal("expected the overdue sweep to run")
	}
}

func TestProcessSubscriptionSweep_SurvivesError(t *testing.T) {
	sweeper := &sweeperStub{sweepErr: errors.New("db unavailable")}
	jobs := NewJobs(sweeper, &expirerStub{}, testLogger())

	// Must not panic; the scheduler keeps the job alive across failures.
	jobs.ProcessSubscriptionSweep()

	if !sweeper.sweepCalled {
		t.Fatal("expected the sweep to have been attempted")
	}
}

func TestProcessRenewalReminders_RunsReminderPass(t *testing.T) {
	sweeper := &sweeperStub{reminders: []domain.ReminderPayload{{}}}
	jobs := NewJobs(sweeper, &expirerStub{}, testLogger())

	jobs.ProcessRenewalReminders()

	if !sweeper.remindersCalled {
		t.Fatal("expected the reminder pass to run")
	}
}

func TestProcessIntentExpiry_RunsExpirySweep(t *testing.T) {
	expirer := &expirerStub{}
	jobs := NewJobs(&sweeperStub{}, expirer, testLogger())

	jobs.ProcessIntentExpiry()

	if !expirer.called {
		t.Fatal("expected the intent expiry sweep to run")
	}
}

func TestProcessIntentExpiry_SurvivesError(t *testing.T) {
	expirer := &expirerStub{err: errors.New("db unavailable")}
	jobs := NewJobs(&sweeperStub{}, expirer, testLogger())

	jobs.ProcessIntentExpiry()

	if !expirer.called {
		t.Fatal("expected the expiry sweep to have been attempted")
	}
}
