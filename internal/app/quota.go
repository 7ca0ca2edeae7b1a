/**
 * @description
 * Tier-limit enforcement. CanCreate is a pure read-time check: it resolves
 * the merchant's subscription (which may lazily settle an overdue state),
 * counts current usage, and compares against the granted tier's limit.
 * Callers are responsible for re-checking at the moment of actual resource
 * creation; the narrow double-booking window is an accepted soft limit.
 */
package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
)

const reasonInactive = "subscription inactive"
const reasonQuotaReached = "tier limit reached"

// QuotaService checks resource creation against tier limits.
type QuotaService struct {
	subs    *SubscriptionService
	repo    store.SubscriptionRepository
	catalog *Catalog
}

// NewQuotaService creates a new quota service.
func NewQuotaService(subs *SubscriptionService, repo store.SubscriptionRepository, catalog *Catalog) *QuotaService {
	return &QuotaService{subs: subs, repo: repo, catalog: catalog}
}

// CanCreate reports whether the merchant may create another resource of the
// given kind. Current and Max are always returned so the UI can render
// "used/max" without a second query.
func (q *QuotaService) CanCreate(ctx context.Context, merchantID uuid.UUID, kind domain.ResourceKind) (domain.QuotaCheck, error) {
	sub, err := q.subs.Get(ctx, merchantID)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	if !sub.IsActive {
		return domain.QuotaCheck{Allowed: false, Reason: reasonInactive}, nil
	}

	tier, err := q.catalog.Tier(sub.GrantedTierID)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	current, err := q.countUsage(ctx, merchantID, kind, sub)
	if err != nil {
		return domain.QuotaCheck{}, err
	}

	max := tier.Limit(kind)
	if max == domain.UnlimitedQuota {
		return domain.QuotaCheck{Allowed: true, Current: current, Max: max}, nil
	}

	check := domain.QuotaCheck{Allowed: current < max, Current: current, Max: max}
	if !check.Allowed {
		check.Reason = reasonQuotaReached
	}
	return check, nil
}

// Enforce converts a failed check into the typed errors callers branch on.
func (q *QuotaService) Enforce(ctx context.Context, merchantID uuid.UUID, kind domain.ResourceKind) error {
	check, err := q.CanCreate(ctx, merchantID, kind)
	if err != nil {
		return err
	}
	if check.Allowed {
		return nil
	}
	if check.Reason == reasonInactive {
		return domain.ErrInactiveSubscription
	}
	return &domain.QuotaExceededError{Kind: kind, Current: check.Current, Max: check.Max}
}

func (q *QuotaService) countUsage(ctx context.Context, merchantID uuid.UUID, kind domain.ResourceKind, sub *domain.Subscription) (int, error) {
	switch kind {
	case domain.ResourceOrder:
		// Orders are limited per billing period, not all-time.
		return q.repo.CountOrdersSince(ctx, merchantID, sub.PeriodStart)
	default:
		return q.repo.CountProducts(ctx, merchantID)
	}
}
