/**
 * @description
 * This file contains the core business logic for the merchant subscription
 * lifecycle. Time-driven transitions (trial expiry, billing-period expiry)
 * are applied both lazily, on every read that touches an overdue record, and
 * eagerly by the scheduler sweep, so correctness does not depend on read
 * traffic happening to occur.
 *
 * @notes
 * - Every transition is claimed through a conditional update in the store.
 *   When two readers race the same overdue subscription, exactly one claim
 *   succeeds; the loser re-reads and returns the already-transitioned row.
 * - The is_active flag and tier badge are mirrored onto the merchant record
 *   as a sequenced second write; the storefront only reads the mirror.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/config"
	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
)

// SubscriptionService provides the business logic for the subscription
// lifecycle.
type SubscriptionService struct {
	repo     store.SubscriptionRepository
	catalog  *Catalog
	notifier Notifier
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(repo store.SubscriptionRepository, catalog *Catalog, notifier Notifier, logger *slog.Logger, cfg config.Config) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SelectPlan creates the merchant's subscription on first plan selection.
// The merchant starts in trial with a promotional top-tier grant; the
// selected tier is what they will be billed at after the trial.
func (s *SubscriptionService) SelectPlan(ctx context.Context, merchantID uuid.UUID, tierID string) (*domain.Subscription, error) {
	tier, err := s.catalog.Tier(tierID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	trialEnd := now.AddDate(0, 0, s.cfg.TrialDays)
	reminderAt := trialEnd.AddDate(0, 0, -s.cfg.TrialReminderLeadDays)
	if !reminderAt.After(now) {
		reminderAt = now.Add(time.Hour)
	}

	sub := &domain.Subscription{
		MerchantID:     merchantID,
		SelectedTierID: tier.ID,
		GrantedTierID:  s.catalog.TopTier().ID,
		Status:         domain.SubscriptionStatusTrial,
		TrialEnd:       trialEnd,
		PeriodStart:    now,
		PeriodEnd:      trialEnd,
		ReminderAt:     reminderAt,
		ReminderSent:   false,
		AutoRenew:      true,
		IsActive:       true,
	}

	created, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.mirror(ctx, created)
	notify(ctx, s.logger, s.notifier, merchantID,
		"Welcome to PipoMarket",
		fmt.Sprintf("Your %d-day trial has started with full %s features.", s.cfg.TrialDays, s.catalog.TopTier().DisplayName),
		map[string]string{"subscription_id": created.ID.String()})

	return created, nil
}

// Get returns the merchant's subscription, applying any overdue time-driven
// transition first. A trial past its end is never returned as trial.
func (s *SubscriptionService) Get(ctx context.Context, merchantID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return s.normalize(ctx, sub)
}

// GetByID returns a subscription by its own ID, normalized the same way.
func (s *SubscriptionService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.normalize(ctx, sub)
}

// StatusView builds the client-facing DTO for a merchant's subscription.
func (s *SubscriptionService) StatusView(ctx context.Context, merchantID uuid.UUID) (*domain.SubscriptionStatusView, error) {
	sub, err := s.Get(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	view := &domain.SubscriptionStatusView{
		Status:         sub.Status,
		SelectedTierID: sub.SelectedTierID,
		GrantedTierID:  sub.GrantedTierID,
		IsActive:       sub.IsActive,
		AutoRenew:      sub.AutoRenew,
	}
	if sub.Status == domain.SubscriptionStatusTrial {
		view.TrialEnd = &sub.TrialEnd
	}
	if sub.Status == domain.SubscriptionStatusActive {
		view.PeriodEnd = &sub.PeriodEnd
	}
	return view, nil
}

// Activate starts a fresh billing period. Valid from pending_payment or
// suspended only; anything else is an invalid transition, not a crash.
func (s *SubscriptionService) Activate(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	now := s.now()
	periodEnd := now.AddDate(0, 0, s.cfg.BillingPeriodDays)
	reminderAt := periodEnd.AddDate(0, 0, -s.cfg.ReminderLeadDays)

	sub, err := s.repo.ActivateSubscription(ctx, id, now, periodEnd, reminderAt)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.claimFailure(ctx, id)
	}

	s.mirror(ctx, sub)
	notify(ctx, s.logger, s.notifier, sub.MerchantID,
		"Subscription activated",
		fmt.Sprintf("Your %s plan is active until %s.", sub.GrantedTierID, sub.PeriodEnd.Format("2 Jan 2006")),
		map[string]string{"subscription_id": sub.ID.String()})
	return sub, nil
}

// Suspend is the admin-forced suspension of an active subscription.
func (s *SubscriptionService) Suspend(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.SuspendSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.claimFailure(ctx, id)
	}

	s.mirror(ctx, sub)
	notify(ctx, s.logger, s.notifier, sub.MerchantID,
		"Subscription suspended",
		"Your storefront is hidden until the subscription is reactivated.",
		map[string]string{"subscription_id": sub.ID.String()})
	return sub, nil
}

// Extend pushes an active subscription's period end and reminder forward by
// whole days and re-arms the reminder.
func (s *SubscriptionService) Extend(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extension days must be positive, got %d", days)
	}

	sub, err := s.repo.ExtendPeriod(ctx, id, days)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.claimFailure(ctx, id)
	}

	notify(ctx, s.logger, s.notifier, sub.MerchantID,
		"Subscription extended",
		fmt.Sprintf("Your plan now runs until %s.", sub.PeriodEnd.Format("2 Jan 2006")),
		map[string]string{"subscription_id": sub.ID.String()})
	return sub, nil
}

// ChangeTier switches the merchant's plan. During trial only the billed
// (selected) tier changes — the promotional grant stays untouched; in any
// other live state both tiers change immediately and the merchant badge is
// re-mirrored.
func (s *SubscriptionService) ChangeTier(ctx context.Context, id uuid.UUID, newTierID string) (*domain.Subscription, error) {
	if _, err := s.catalog.Tier(newTierID); err != nil {
		return nil, err
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == domain.SubscriptionStatusTrial {
		sub, err := s.repo.UpdateSelectedTier(ctx, id, newTierID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			// The trial expired between the read and the write; retry once
			// against the settled state.
			return s.ChangeTier(ctx, id, newTierID)
		}
		return sub, nil
	}

	if current.Status == domain.SubscriptionStatusCancelled {
		return nil, domain.ErrInvalidTransition
	}

	sub, err := s.repo.UpdateGrantedAndSelectedTier(ctx, id, newTierID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrInvalidTransition
	}

	s.mirror(ctx, sub)
	return sub, nil
}

// Cancel terminates the subscription immediately: the storefront goes
// hidden right away rather than at period end.
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.CancelSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.claimFailure(ctx, id)
	}

	s.mirror(ctx, sub)
	notify(ctx, s.logger, s.notifier, sub.MerchantID,
		"Subscription cancelled",
		"Your subscription has ended and your storefront is no longer visible.",
		map[string]string{"subscription_id": sub.ID.String()})
	return sub, nil
}

// List returns subscriptions for the admin surface, optionally filtered by
// status.
func (s *SubscriptionService) List(ctx context.Context, status string, limit int) ([]domain.Subscription, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListSubscriptions(ctx, status, limit)
}

// DueReminders finds subscriptions whose renewal reminder has come due,
// marks them sent, and notifies each merchant. The mark is single-shot, so
// two racing sweeps produce one reminder.
func (s *SubscriptionService) DueReminders(ctx context.Context, now time.Time) ([]domain.ReminderPayload, error) {
	due, err := s.repo.ListDueReminders(ctx, now)
	if err != nil {
		return nil, err
	}

	var sent []domain.ReminderPayload
	for _, sub := range due {
		claimed, err := s.repo.MarkReminderSent(ctx, sub.ID)
		if err != nil {
			s.logger.Error("failed to mark reminder sent", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		payload := domain.ReminderPayload{
			SubscriptionID: sub.ID,
			MerchantID:     sub.MerchantID,
			Status:         sub.Status,
			PeriodEnd:      sub.PeriodEnd,
		}
		sent = append(sent, payload)

		body := fmt.Sprintf("Your plan renews on %s. Dial your mobile money code to stay visible.", sub.PeriodEnd.Format("2 Jan 2006"))
		if sub.Status == domain.SubscriptionStatusTrial {
			body = fmt.Sprintf("Your trial ends on %s. Pick a plan to keep your storefront open.", sub.TrialEnd.Format("2 Jan 2006"))
		}
		notify(ctx, s.logger, s.notifier, sub.MerchantID, "Renewal reminder", body,
			map[string]string{"subscription_id": sub.ID.String()})
	}
	return sent, nil
}

// SweepOverdue applies every due time-driven transition in one pass. The
// scheduler runs this so a subscription nobody reads still settles into the
// right state.
func (s *SubscriptionService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for _, sub := range overdue {
		settled, err := s.applyOverdue(ctx, &sub, now)
		if err != nil {
			s.logger.Error("failed to transition overdue subscription", "subscription_id", sub.ID, "status", sub.Status, "error", err)
			continue
		}
		if settled {
			transitioned++
		}
	}
	return transitioned, nil
}

// normalize applies any pending time-driven transition before a
// subscription is returned to a caller.
func (s *SubscriptionService) normalize(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	now := s.now()
	overdueTrial := sub.Status == domain.SubscriptionStatusTrial && !now.Before(sub.TrialEnd)
	lapsedActive := sub.Status == domain.SubscriptionStatusActive && !now.Before(sub.PeriodEnd)
	if !overdueTrial && !lapsedActive {
		return sub, nil
	}

	if _, err := s.applyOverdue(ctx, sub, now); err != nil {
		return nil, err
	}

	// Whether this reader won the claim or lost it to a concurrent one, the
	// row is settled now; re-read to return the post-transition state.
	return s.repo.GetByID(ctx, sub.ID)
}

// applyOverdue claims the transition a subscription is due for. Returns
// whether this caller's claim won.
func (s *SubscriptionService) applyOverdue(ctx context.Context, sub *domain.Subscription, now time.Time) (bool, error) {
	var (
		settled *domain.Subscription
		err     error
	)
	switch sub.Status {
	case domain.SubscriptionStatusTrial:
		settled, err = s.repo.ExpireTrial(ctx, sub.ID, now)
	case domain.SubscriptionStatusActive:
		settled, err = s.repo.SuspendLapsed(ctx, sub.ID, now)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if settled == nil {
		return false, nil
	}

	s.mirror(ctx, settled)

	title, body := "Trial ended", "Your trial has ended. Pay for your selected plan to reopen your storefront."
	if settled.Status == domain.SubscriptionStatusSuspended {
		title, body = "Subscription expired", "Your billing period has ended. Renew to make your storefront visible again."
	}
	notify(ctx, s.logger, s.notifier, settled.MerchantID, title, body,
		map[string]string{"subscription_id": settled.ID.String()})
	return true, nil
}

// mirror copies the visibility flag and tier badge onto the merchant
// record. A mirror failure is logged, not propagated: the subscription row
// is the source of truth and the sweep re-mirrors on its next pass.
func (s *SubscriptionService) mirror(ctx context.Context, sub *domain.Subscription) {
	if err := s.repo.MirrorMerchantFlags(ctx, sub.MerchantID, sub.IsActive, sub.GrantedTierID); err != nil {
		s.logger.Warn("failed to mirror merchant flags", "merchant_id", sub.MerchantID, "error", err)
	}
}

// claimFailure distinguishes "no such subscription" from "wrong state" after
// a guarded transition matched no row.
func (s *SubscriptionService) claimFailure(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return store.ErrSubscriptionNotFound
		}
		return err
	}
	return domain.ErrInvalidTransition
}
