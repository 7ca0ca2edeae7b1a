/**
 * @description
 * The two-party payment settlement protocol. A customer claims to have sent
 * mobile money (CustomerConfirm); the merchant verifies receipt
 * (MerchantConfirm), which is the authoritative settlement point: it marks
 * the parent order verified and credits the referral commission. Every
 * transition is claimed through a conditional update so a duplicate
 * confirmation cannot double-credit.
 *
 * @notes
 * - The commission rate is snapshotted at intent creation from the
 *   merchant's current subscription state and never recomputed, so the
 *   gross = net + commission split is fixed for the intent's lifetime.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/config"
	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
)

// ErrInvalidAmount is returned when an intent is created with a
// non-positive gross amount.
var ErrInvalidAmount = errors.New("gross amount must be positive")

// PaymentService drives payment intents through the confirmation protocol.
type PaymentService struct {
	repo     store.PaymentRepository
	subs     *SubscriptionService
	catalog  *Catalog
	notifier Notifier
	events   EventPublisher
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

// NewPaymentService creates a new payment settlement service.
func NewPaymentService(repo store.PaymentRepository, subs *SubscriptionService, catalog *Catalog, notifier Notifier, events EventPublisher, logger *slog.Logger, cfg config.Config) *PaymentService {
	return &PaymentService{
		repo:     repo,
		subs:     subs,
		catalog:  catalog,
		notifier: notifier,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create opens a payment intent for one merchant's share of an order.
func (s *PaymentService) Create(ctx context.Context, orderID, merchantID, customerID uuid.UUID, gross int64) (*domain.PaymentIntent, error) {
	if gross <= 0 {
		return nil, ErrInvalidAmount
	}

	rate := s.commissionRate(ctx, merchantID)
	commission := int64(math.Round(float64(gross) * rate / 100))
	now := s.now()

	intent := &domain.PaymentIntent{
		OrderID:               orderID,
		MerchantID:            merchantID,
		CustomerID:            customerID,
		GrossAmount:           gross,
		CommissionAmount:      commission,
		CommissionRatePercent: rate,
		MerchantNetAmount:     gross - commission,
		Status:                domain.IntentStatusPending,
		CreatedAt:             now,
		ExpiresAt:             now.Add(time.Duration(s.cfg.IntentTTLMinutes) * time.Minute),
	}
	return s.repo.CreateIntent(ctx, intent)
}

// CreateForOrder opens one intent per merchant share of a multi-merchant
// cart. Creation is sequenced; a failure part-way returns what succeeded so
// the caller can retry the rest.
func (s *PaymentService) CreateForOrder(ctx context.Context, orderID, customerID uuid.UUID, shares []domain.MerchantShare) ([]domain.PaymentIntent, error) {
	if len(shares) == 0 {
		return nil, ErrInvalidAmount
	}

	intents := make([]domain.PaymentIntent, 0, len(shares))
	for _, share := range shares {
		intent, err := s.Create(ctx, orderID, share.MerchantID, customerID, share.GrossAmount)
		if err != nil {
			return intents, fmt.Errorf("creating intent for merchant %s: %w", share.MerchantID, err)
		}
		intents = append(intents, *intent)
	}
	return intents, nil
}

// Get returns a payment intent.
func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	return s.repo.GetIntent(ctx, id)
}

// ListForOrder returns every intent of an order.
func (s *PaymentService) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.PaymentIntent, error) {
	return s.repo.ListIntentsByOrder(ctx, orderID)
}

// CustomerConfirm records the customer's claim of having paid. No funds
// move here; the merchant is asked to verify.
func (s *PaymentService) CustomerConfirm(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	intent, err := s.repo.MarkCustomerConfirmed(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, s.claimFailure(ctx, id)
	}

	notify(ctx, s.logger, s.notifier, intent.MerchantID,
		"Payment claimed",
		fmt.Sprintf("A customer says they sent %d XAF for order %s. Please verify receipt.", intent.GrossAmount, shortID(intent.OrderID)),
		map[string]string{"intent_id": intent.ID.String(), "order_id": intent.OrderID.String()})
	return intent, nil
}

// MerchantConfirm is the authoritative settlement: it verifies the order
// and credits the referral commission exactly once. A retry of an
// already-confirmed intent fails with ErrInvalidTransition and never
// credits twice.
func (s *PaymentService) MerchantConfirm(ctx context.Context, id uuid.UUID, referralCode string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.MarkMerchantConfirmed(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, s.claimFailure(ctx, id)
	}

	// Sequenced side effects. The settlement itself is already durable;
	// failures here are logged, not used to unwind it.
	if err := s.repo.MarkOrderPaymentVerified(ctx, intent.OrderID); err != nil {
		s.logger.Error("failed to mark order payment verified", "order_id", intent.OrderID, "error", err)
	}

	if referralCode != "" {
		s.creditReferral(ctx, referralCode, intent)
	}

	if s.events != nil {
		event := domain.SettlementEvent{
			IntentID:          intent.ID,
			OrderID:           intent.OrderID,
			MerchantID:        intent.MerchantID,
			GrossAmount:       intent.GrossAmount,
			CommissionAmount:  intent.CommissionAmount,
			MerchantNetAmount: intent.MerchantNetAmount,
			Timestamp:         s.now(),
		}
		if err := s.events.Publish(ctx, EventsExchange, "payment.settled", event); err != nil {
			s.logger.Warn("failed to publish settlement event", "intent_id", intent.ID, "error", err)
		}
	}

	notify(ctx, s.logger, s.notifier, intent.CustomerID,
		"Payment confirmed",
		fmt.Sprintf("The merchant confirmed your payment for order %s. It is now processing.", shortID(intent.OrderID)),
		map[string]string{"intent_id": intent.ID.String(), "order_id": intent.OrderID.String()})
	return intent, nil
}

// Cancel abandons an intent before settlement and tells both parties.
func (s *PaymentService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentIntent, error) {
	if reason == "" {
		reason = "cancelled"
	}

	intent, err := s.repo.CancelIntent(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, s.claimFailure(ctx, id)
	}

	body := fmt.Sprintf("The payment for order %s was cancelled.", shortID(intent.OrderID))
	meta := map[string]string{"intent_id": intent.ID.String(), "order_id": intent.OrderID.String()}
	notify(ctx, s.logger, s.notifier, intent.CustomerID, "Payment cancelled", body, meta)
	notify(ctx, s.logger, s.notifier, intent.MerchantID, "Payment cancelled", body, meta)
	return intent, nil
}

// ExpireOverdue cancels pending intents past their expiry. Run by the
// scheduler; each cancellation is claimed, so a racing user confirmation
// either beats the sweep or loses cleanly.
func (s *PaymentService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListExpiredPending(ctx, now)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, intent := range expired {
		claimed, err := s.repo.CancelIntent(ctx, intent.ID, "expired")
		if err != nil {
			s.logger.Error("failed to expire payment intent", "intent_id", intent.ID, "error", err)
			continue
		}
		if claimed == nil {
			continue
		}
		cancelled++

		body := fmt.Sprintf("The payment window for order %s expired before confirmation.", shortID(claimed.OrderID))
		meta := map[string]string{"intent_id": claimed.ID.String(), "order_id": claimed.OrderID.String()}
		notify(ctx, s.logger, s.notifier, claimed.CustomerID, "Payment expired", body, meta)
		notify(ctx, s.logger, s.notifier, claimed.MerchantID, "Payment expired", body, meta)
	}
	return cancelled, nil
}

// commissionRate resolves the rate to snapshot: the granted tier's rate for
// an active subscription, the standard platform rate in every other state
// (trial included — the promotional grant covers features, not commission).
func (s *PaymentService) commissionRate(ctx context.Context, merchantID uuid.UUID) float64 {
	sub, err := s.subs.Get(ctx, merchantID)
	if err != nil {
		if !errors.Is(err, store.ErrSubscriptionNotFound) {
			s.logger.Warn("failed to resolve subscription for commission rate", "merchant_id", merchantID, "error", err)
		}
		return s.cfg.StandardCommissionPercent
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return s.cfg.StandardCommissionPercent
	}

	tier, err := s.catalog.Tier(sub.GrantedTierID)
	if err != nil {
		return s.cfg.StandardCommissionPercent
	}
	return tier.CommissionRatePercent
}

// creditReferral credits the fixed ambassador commission. The insert is
// keyed on the intent, so even a retried call after a partial failure
// yields at most one credit.
func (s *PaymentService) creditReferral(ctx context.Context, code string, intent *domain.PaymentIntent) {
	referrerID, err := s.repo.FindReferrerByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrReferrerNotFound) {
			s.logger.Info("unknown referral code on settlement", "code", code, "intent_id", intent.ID)
			return
		}
		s.logger.Error("failed to resolve referral code", "code", code, "error", err)
		return
	}

	credited, err := s.repo.InsertReferralCredit(ctx, referrerID, intent.ID, s.cfg.ReferralCommissionAmount)
	if err != nil {
		s.logger.Error("failed to credit referral commission", "referrer_id", referrerID, "intent_id", intent.ID, "error", err)
		return
	}
	if !credited {
		return
	}

	notify(ctx, s.logger, s.notifier, referrerID,
		"Referral commission earned",
		fmt.Sprintf("You earned %d XAF from a confirmed order.", s.cfg.ReferralCommissionAmount),
		map[string]string{"intent_id": intent.ID.String()})
}

// claimFailure distinguishes a missing intent from a wrong-state one after
// a guarded transition matched no row.
func (s *PaymentService) claimFailure(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetIntent(ctx, id); err != nil {
		if errors.Is(err, store.ErrPaymentIntentNotFound) {
			return store.ErrPaymentIntentNotFound
		}
		return err
	}
	return domain.ErrInvalidTransition
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
