/**
 * @description
 * This file defines the interfaces for the data access layer (repositories)
 * and the sentinel errors they return. Services depend on these interfaces,
 * not on the concrete PostgreSQL implementations, which keeps the business
 * logic testable with in-memory stubs.
 *
 * @notes
 * - Guarded transition methods (ExpireTrial, MarkMerchantConfirmed, ...)
 *   return (nil, nil) when the conditional update matched no row, meaning a
 *   concurrent caller won the claim or the record is in another state. The
 *   caller decides whether that is a lost race or an invalid transition.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/domain"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrSubscriptionExists    = errors.New("subscription already exists for merchant")
	ErrPaymentIntentNotFound = errors.New("payment intent not found")
	ErrRewardNotFound        = errors.New("reward not found")
	ErrReferrerNotFound      = errors.New("referrer not found")
)

// SubscriptionRepository defines the contract for subscription and merchant
// mirror persistence, plus the usage counts the quota enforcer needs.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, status string, limit int) ([]domain.Subscription, error)

	// Guarded transitions. Each matches only the permitted source status so
	// concurrent callers racing the same overdue row are idempotent.
	ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Subscription, error)
	SuspendLapsed(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Subscription, error)
	ActivateSubscription(ctx context.Context, id uuid.UUID, periodStart, periodEnd, reminderAt time.Time) (*domain.Subscription, error)
	SuspendSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	ExtendPeriod(ctx context.Context, id uuid.UUID, days int) (*domain.Subscription, error)
	UpdateSelectedTier(ctx context.Context, id uuid.UUID, tierID string) (*domain.Subscription, error)
	UpdateGrantedAndSelectedTier(ctx context.Context, id uuid.UUID, tierID string) (*domain.Subscription, error)
	CancelSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)

	// Sweep and reminder support.
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	ListDueReminders(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)

	// Merchant record mirror (sequenced write, no cross-table transaction).
	MirrorMerchantFlags(ctx context.Context, merchantID uuid.UUID, isActive bool, tierID string) error

	// Usage counts for quota checks.
	CountProducts(ctx context.Context, merchantID uuid.UUID) (int, error)
	CountOrdersSince(ctx context.Context, merchantID uuid.UUID, since time.Time) (int, error)
}

// PaymentRepository defines the contract for payment intent persistence and
// the referral-credit side effect of merchant confirmation.
type PaymentRepository interface {
	CreateIntent(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error)
	GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	ListIntentsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.PaymentIntent, error)

	MarkCustomerConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	MarkMerchantConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	CancelIntent(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentIntent, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]domain.PaymentIntent, error)

	MarkOrderPaymentVerified(ctx context.Context, orderID uuid.UUID) error
	FindReferrerByCode(ctx context.Context, code string) (uuid.UUID, error)
	InsertReferralCredit(ctx context.Context, referrerID, intentID uuid.UUID, amount int64) (bool, error)
}

// RewardRepository defines the contract for reward lookups and the loyalty
// fund ledger.
type RewardRepository interface {
	GetReward(ctx context.Context, id uuid.UUID) (*domain.Reward, error)
	GetFund(ctx context.Context) (*domain.LoyaltyFund, error)
	DebitFund(ctx context.Context, orderID uuid.UUID, amount int64, note string) (*domain.FundLedgerEntry, error)
	CreditFund(ctx context.Context, amount int64, note string) (*domain.FundLedgerEntry, error)
}
