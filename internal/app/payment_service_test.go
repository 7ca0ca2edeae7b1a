package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
)

// fakePaymentRepo is an in-memory PaymentRepository mirroring the
// conditional-update semantics of the Postgres implementation.
type fakePaymentRepo struct {
	mu      sync.Mutex
	intents map[uuid.UUID]*domain.PaymentIntent

	verifiedOrders map[uuid.UUID]bool
	referrers      map[string]uuid.UUID
	credits        map[uuid.UUID]int64 // keyed by intent ID
	balances       map[uuid.UUID]int64
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		intents:        make(map[uuid.UUID]*domain.PaymentIntent),
		verifiedOrders: make(map[uuid.UUID]bool),
		referrers:      make(map[string]uuid.UUID),
		credits:        make(map[uuid.UUID]int64),
		balances:       make(map[uuid.UUID]int64),
	}
}

func copyIntent(intent *domain.PaymentIntent) *domain.PaymentIntent {
	c := *intent
	return &c
}

func (f *fakePaymentRepo) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := *intent
	created.ID = uuid.New()
	f.intents[created.ID] = &created
	return copyIntent(&created), nil
}

func (f *fakePaymentRepo) GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, store.ErrPaymentIntentNotFound
	}
	return copyIntent(intent), nil
}

func (f *fakePaymentRepo) ListIntentsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentIntent
	for _, intent := range f.intents {
		if intent.OrderID == orderID {
			out = append(out, *intent)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) MarkCustomerConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok || intent.Status != domain.IntentStatusPending {
		return nil, nil
	}
	intent.Status = domain.IntentStatusCustomerConfirmed
	return copyIntent(intent), nil
}

func (f *fakePaymentRepo) MarkMerchantConfirmed(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok || intent.Status != domain.IntentStatusCustomerConfirmed {
		return nil, nil
	}
	intent.Status = domain.IntentStatusMerchantConfirmed
	return copyIntent(intent), nil
}

func (f *fakePaymentRepo) CancelIntent(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok || (intent.Status != domain.IntentStatusPending && intent.Status != domain.IntentStatusCustomerConfirmed) {
		return nil, nil
	}
	intent.Status = domain.IntentStatusCancelled
	intent.CancelReason = &reason
	return copyIntent(intent), nil
}

func (f *fakePaymentRepo) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentIntent
	for _, intent := range f.intents {
		if intent.Status == domain.IntentStatusPending && !intent.ExpiresAt.After(now) {
			out = append(out, *intent)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) MarkOrderPaymentVerified(ctx context.Context, orderID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifiedOrders[orderID] = true
	return nil
}

func (f *fakePaymentRepo) FindReferrerByCode(ctx context.Context, code string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.referrers[code]
	if !ok {
		return uuid.Nil, store.ErrReferrerNotFound
	}
	return id, nil
}

func (f *fakePaymentRepo) InsertReferralCredit(ctx context.Context, referrerID, intentID uuid.UUID, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.credits[intentID]; exists {
		return false, nil
	}
	f.credits[intentID] = amount
	f.balances[referrerID] += amount
	return true, nil
}

// recordingPublisher captures broker events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	routed []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routed = append(p.routed, routingKey)
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := 0
	for _, k := range p.routed {
		if k == routingKey {
			c++
		}
	}
	return c
}

func newTestPaymentService(repo *fakePaymentRepo, subRepo *fakeSubscriptionRepo) (*PaymentService, *recordingNotifier, *recordingPublisher) {
	notifier := newRecordingNotifier()
	publisher := &recordingPublisher{}
	subs, _ := newTestSubscriptionService(subRepo)
	svc := NewPaymentService(repo, subs, DefaultCatalog(), notifier, publisher, testLogger(), testConfig())
	return svc, notifier, publisher
}

func TestCreate_SplitPreservesGrossAmount(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	// No subscription on file, so the standard 10% rate applies.
	for _, gross := range []int64{100, 999, 1001, 33333, 2500000} {
		intent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), gross)
		if err != nil {
			t.Fatalf("Create(%d) returned error: %v", gross, err)
		}
		if intent.CommissionAmount+intent.MerchantNetAmount != intent.GrossAmount {
			t.Fatalf("gross %d split violated: commission %d + net %d != gross %d",
				gross, intent.CommissionAmount, intent.MerchantNetAmount, intent.GrossAmount)
		}
		if intent.CommissionRatePercent != 10 {
			t.Fatalf("expected standard rate 10, got %v", intent.CommissionRatePercent)
		}
	}

	if _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero gross, got %v", err)
	}
	if _, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), -500); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative gross, got %v", err)
	}
}

func TestCreate_UsesGrantedTierRateWhenActive(t *testing.T) {
	repo := newFakePaymentRepo()
	subRepo := newFakeSubscriptionRepo()
	notifier := newRecordingNotifier()
	publisher := &recordingPublisher{}
	subs, _ := newTestSubscriptionService(subRepo)
	svc := NewPaymentService(repo, subs, DefaultCatalog(), notifier, publisher, testLogger(), testConfig())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	subs.now = func() time.Time { return now }
	svc.now = func() time.Time { return now }

	merchantID := uuid.New()
	created, err := subs.SelectPlan(context.Background(), merchantID, domain.TierPro)
	if err != nil {
		t.Fatalf("SelectPlan returned error: %v", err)
	}

	// Trial merchants pay the standard rate; the promotional grant covers
	// features, not commission.
	intent, err := svc.Create(context.Background(), uuid.New(), merchantID, uuid.New(), 10000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if intent.CommissionRatePercent != 10 || intent.CommissionAmount != 1000 {
		t.Fatalf("expected standard split on trial, got rate %v commission %d", intent.CommissionRatePercent, intent.CommissionAmount)
	}

	now = start.AddDate(0, 0, 15)
	if _, err := subs.Get(context.Background(), merchantID); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if _, err := subs.Activate(context.Background(), created.ID); err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}

	// Active on pro: the tier's 7% rate applies.
	intent, err = svc.Create(context.Background(), uuid.New(), merchantID, uuid.New(), 10000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if intent.CommissionRatePercent != 7 || intent.CommissionAmount != 700 {
		t.Fatalf("expected pro split, got rate %v commission %d", intent.CommissionRatePercent, intent.CommissionAmount)
	}
	if intent.MerchantNetAmount != 9300 {
		t.Fatalf("expected net 9300, got %d", intent.MerchantNetAmount)
	}
}

func TestCreateForOrder_OneIntentPerMerchantShare(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	orderID := uuid.New()
	shares := []domain.MerchantShare{
		{MerchantID: uuid.New(), GrossAmount: 4000},
		{MerchantID: uuid.New(), GrossAmount: 6500},
	}

	intents, err := svc.CreateForOrder(context.Background(), orderID, uuid.New(), shares)
	if err != nil {
		t.Fatalf("CreateForOrder returned error: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(intents))
	}
	for i, intent := range intents {
		if intent.OrderID != orderID || intent.MerchantID != shares[i].MerchantID {
			t.Fatalf("intent %d not bound to its share: %+v", i, intent)
		}
	}

	if _, err := svc.CreateForOrder(context.Background(), orderID, uuid.New(), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for empty shares, got %v", err)
	}
}

func TestCustomerConfirm_OnlyFromPending(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, notifier, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	merchantID := uuid.New()
	intent, err := svc.Create(context.Background(), uuid.New(), merchantID, uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	confirmed, err := svc.CustomerConfirm(context.Background(), intent.ID)
	if err != nil {
		t.Fatalf("CustomerConfirm returned error: %v", err)
	}
	if confirmed.Status != domain.IntentStatusCustomerConfirmed {
		t.Fatalf("expected customer_confirmed, got %q", confirmed.Status)
	}
	if got := len(notifier.byUser[merchantID]); got != 1 {
		t.Fatalf("expected one merchant notification, got %d", got)
	}

	if _, err := svc.CustomerConfirm(context.Background(), intent.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat confirm, got %v", err)
	}
	if _, err := svc.CustomerConfirm(context.Background(), uuid.New()); !errors.Is(err, store.ErrPaymentIntentNotFound) {
		t.Fatalf("expected ErrPaymentIntentNotFound, got %v", err)
	}
}

func TestMerchantConfirm_CreditsReferralExactlyOnce(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, publisher := newTestPaymentService(repo, newFakeSubscriptionRepo())

	referrerID := uuid.New()
	repo.referrers["AMB123"] = referrerID

	intent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 20000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.CustomerConfirm(context.Background(), intent.ID); err != nil {
		t.Fatalf("CustomerConfirm returned error: %v", err)
	}

	settled, err := svc.MerchantConfirm(context.Background(), intent.ID, "AMB123")
	if err != nil {
		t.Fatalf("MerchantConfirm returned error: %v", err)
	}
	if settled.Status != domain.IntentStatusMerchantConfirmed {
		t.Fatalf("expected merchant_confirmed, got %q", settled.Status)
	}
	if !repo.verifiedOrders[intent.OrderID] {
		t.Error("expected parent order marked payment verified")
	}
	if repo.balances[referrerID] != 500 {
		t.Fatalf("expected referrer credited 500, got %d", repo.balances[referrerID])
	}
	if got := publisher.count("payment.settled"); got != 1 {
		t.Fatalf("expected one settlement event, got %d", got)
	}

	// A duplicate confirmation fails and must not credit again.
	if _, err := svc.MerchantConfirm(context.Background(), intent.ID, "AMB123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on duplicate confirm, got %v", err)
	}
	if len(repo.credits) != 1 {
		t.Fatalf("expected exactly one referral credit, got %d", len(repo.credits))
	}
	if repo.balances[referrerID] != 500 {
		t.Fatalf("expected balance unchanged at 500, got %d", repo.balances[referrerID])
	}
}

func TestMerchantConfirm_RequiresCustomerConfirmationFirst(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	intent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.MerchantConfirm(context.Background(), intent.ID, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending intent, got %v", err)
	}
	if len(repo.credits) != 0 {
		t.Fatal("expected no referral credit without settlement")
	}
}

func TestMerchantConfirm_UnknownReferralCodeIgnored(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	intent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.CustomerConfirm(context.Background(), intent.ID); err != nil {
		t.Fatalf("CustomerConfirm returned error: %v", err)
	}

	settled, err := svc.MerchantConfirm(context.Background(), intent.ID, "NO-SUCH-CODE")
	if err != nil {
		t.Fatalf("expected settlement to succeed despite unknown code, got %v", err)
	}
	if settled.Status != domain.IntentStatusMerchantConfirmed {
		t.Fatalf("expected merchant_confirmed, got %q", settled.Status)
	}
	if len(repo.credits) != 0 {
		t.Fatal("expected no credit for an unknown referral code")
	}
}

func TestCancel_BlockedAfterSettlement(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, _, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	intent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), intent.ID, "changed my mind")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != domain.IntentStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "changed my mind" {
		t.Fatalf("expected cancel reason recorded, got %v", cancelled.CancelReason)
	}

	settledIntent, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.CustomerConfirm(context.Background(), settledIntent.ID); err != nil {
		t.Fatalf("CustomerConfirm returned error: %v", err)
	}
	if _, err := svc.MerchantConfirm(context.Background(), settledIntent.ID, ""); err != nil {
		t.Fatalf("MerchantConfirm returned error: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), settledIntent.ID, "too late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition cancelling a settled intent, got %v", err)
	}
}

func TestExpireOverdue_CancelsOnlyExpiredPending(t *testing.T) {
	repo := newFakePaymentRepo()
	svc, notifier, _ := newTestPaymentService(repo, newFakeSubscriptionRepo())

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	stale, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	confirmed, err := svc.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), 5000)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.CustomerConfirm(context.Background(), confirmed.ID); err != nil {
		t.Fatalf("CustomerConfirm returned error: %v", err)
	}

	// Both intents carry a 15 minute TTL; sweep 20 minutes later.
	cancelled, err := svc.ExpireOverdue(context.Background(), start.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("ExpireOverdue returned error: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 expired intent, got %d", cancelled)
	}

	expired, _ := svc.Get(context.Background(), stale.ID)
	if expired.Status != domain.IntentStatusCancelled || expired.CancelReason == nil || *expired.CancelReason != "expired" {
		t.Fatalf("expected stale intent cancelled as expired, got %+v", expired)
	}
	kept, _ := svc.Get(context.Background(), confirmed.ID)
	if kept.Status != domain.IntentStatusCustomerConfirmed {
		t.Fatalf("expected customer-confirmed intent untouched, got %q", kept.Status)
	}
	if got := notifier.count("Payment expired"); got != 2 {
		t.Fatalf("expected both parties notified of expiry, got %d notifications", got)
	}
}
