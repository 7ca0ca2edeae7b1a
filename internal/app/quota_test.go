package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/domain"
)

// activateOnStarter walks a merchant to an active subscription whose granted
// tier is starter: trial, trial expiry, then activation.
func activateOnStarter(t *testing.T, svc *SubscriptionService, repo *fakeSubscriptionRepo, merchantID uuid.UUID) *domain.Subscription {
	t.Helper()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	svc.now = func() time.Time { return now }

	created, err := svc.SelectPlan(context.Background(), merchantID, domain.TierStarter)
	if err != nil {
		t.Fatalf("SelectPlan returned error: %v", err)
	}
	now = start.AddDate(0, 0, 15)
	if _, err := svc.Get(context.Background(), merchantID); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	sub, err := svc.Activate(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	return sub
}

func TestCanCreate_DeniesAtTierLimit(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc, _ := newTestSubscriptionService(repo)
	quota := NewQuotaService(svc, repo, DefaultCatalog())

	merchantID := uuid.New()
	activateOnStarter(t, svc, repo, merchantID)

	// Starter allows 10 products; at exactly 10 the next create is denied.
	repo.products = 10
	check, err := quota.CanCreate(context.Background(), merchantID, domain.ResourceProduct)
	if err != nil {
		t.Fatalf("CanCreate returned error: %v", err)
	}
	if check.Allowed {
		t.Fatal("expected creation denied at the tier limit")
	}
	if check.Current != 10 || check.Max != 10 {
		t.Fatalf("expected current 10 / max 10, got %d / %d", check.Current, check.Max)
	}
	if check.Reason != "tier limit reached" {
		t.Fatalf("unexpected denial reason %q", check.Reason)
	}

	repo.products = 9
	check, err = quota.CanCreate(context.Background(), merchantID, domain.ResourceProduct)
	if err != nil {
		t.Fatalf("CanCreate returned error: %v", err)
	}
	if !check.Allowed {
		t.Fatal("expected creation allowed below the tier limit")
	}
}

func TestCanCreate_InactiveSubscriptionDenied(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc, _ := newTestSubscriptionService(repo)
	quota := NewQuotaService(svc, repo, DefaultCatalog())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	svc.now = func() time.Time { return now }

	merchantID := uuid.New()
	if _, err := svc.SelectPlan(context.Background(), merchantID, domain.TierStarter); err != nil {
		t.Fatalf("SelectPlan returned error: %v", err)
	}
	now = start.AddDate(0, 0, 15) // trial now overdue, settles to pending_payment

	check, err := quota.CanCreate(context.Background(), merchantID, domain.ResourceProduct)
	if err != nil {
		t.Fatalf("CanCreate returned error: %v", err)
	}
	if check.Allowed {
		t.Fatal("expected denial for inactive subscription")
	}
	if check.Reason != "subscription inactive" {
		t.Fatalf("unexpected denial reason %q", check.Reason)
	}

	if err := quota.Enforce(context.Background(), merchantID, domain.ResourceProduct); !errors.Is(err, domain.ErrInactiveSubscription) {
		t.Fatalf("expected ErrInactiveSubscription, got %v", err)
	}
}

func TestCanCreate_UnlimitedTier(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc, _ := newTestSubscriptionService(repo)
	quota := NewQuotaService(svc, repo, DefaultCatalog())

	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	// During trial the promotional pro grant applies, which is unlimited.
	merchantID := uuid.New()
	if _, err := svc.SelectPlan(context.Background(), merchantID, domain.TierStarter); err != nil {
		t.Fatalf("SelectPlan returned error: %v", err)
	}

	repo.products = 100000
	check, err := quota.CanCreate(context.Background(), merchantID, domain.ResourceProduct)
	if err != nil {
		t.Fatalf("CanCreate returned error: %v", err)
	}
	if !check.Allowed {
		t.Fatal("expected unlimited tier to always allow creation")
	}
	if check.Max != domain.UnlimitedQuota {
		t.Fatalf("expected unlimited max, got %d", check.Max)
	}
}

func TestCanCreate_OrdersCountedPerBillingPeriod(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc, _ := newTestSubscriptionService(repo)
	quota := NewQuotaService(svc, repo, DefaultCatalog())

	merchantID := uuid.New()
	sub := activateOnStarter(t, svc, repo, merchantID)

	repo.orders = 3
	check, err := quota.CanCreate(context.Background(), merchantID, domain.ResourceOrder)
	if err != nil {
		t.Fatalf("CanCreate returned error: %v", err)
	}
	if !check.Allowed || check.Current != 3 || check.Max != 50 {
		t.Fatalf("unexpected check %+v", check)
	}
	if !repo.ordersSince.Equal(sub.PeriodStart) {
		t.Fatalf("expected orders counted since period start %v, got %v", sub.PeriodStart, repo.ordersSince)
	}
}

func TestEnforce_ReturnsTypedQuotaError(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	svc, _ := newTestSubscriptionService(repo)
	quota := NewQuotaService(svc, repo, DefaultCatalog())

	merchantID := uuid.New()
	activateOnStarter(t, svc, repo, merchantID)

	repo.orders = 50
	err := quota.Enforce(context.Background(), merchantID, domain.ResourceOrder)
	var quotaErr *domain.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.Kind != domain.ResourceOrder || quotaErr.Current != 50 || quotaErr.Max != 50 {
		t.Fatalf("unexpected error contents %+v", quotaErr)
	}

	repo.orders = 10
	if err := quota.Enforce(context.Background(), merchantID, domain.ResourceOrder); err != nil {
		t.Fatalf("expected nil error below limit, got %v", err)
	}
}
