/**
 * @description
 * The loyalty reward ledger: computes capped discount/credit amounts for an
 * applied reward and debits the platform fund for the subsidy when the
 * order settles. The merchant's receivable is never reduced by a reward —
 * the platform absorbs the full applied amount.
 *
 * @notes
 * - Fund depletion floors the balance at zero and logs a warning; it never
 *   blocks an order. The ledger entry records what was actually debited.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/config"
	"github.com/pipomarket/settlement-service/internal/domain"
	"github.com/pipomarket/settlement-service/internal/store"
)

// Cart carries the amounts a reward is applied against.
type Cart struct {
	Subtotal    int64 `json:"subtotal"`
	DeliveryFee int64 `json:"delivery_fee"`
}

// RewardService computes reward applications and maintains the loyalty
// fund.
type RewardService struct {
	repo   store.RewardRepository
	logger *slog.Logger
	cfg    config.Config
}

// NewRewardService creates a new reward ledger service.
func NewRewardService(repo store.RewardRepository, logger *slog.Logger, cfg config.Config) *RewardService {
	return &RewardService{repo: repo, logger: logger, cfg: cfg}
}

// Quote fetches the reward and computes its application to the cart.
func (s *RewardService) Quote(ctx context.Context, rewardID uuid.UUID, cart Cart) (*domain.RewardApplication, error) {
	reward, err := s.repo.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	app := s.CalculateDiscount(cart, *reward)
	return &app, nil
}

// CalculateDiscount is the pure capping logic. The applied amount never
// exceeds the cart subtotal or the global per-order caps, and every
// reduction below the reward's face value carries a warning naming the cap
// that bit.
func (s *RewardService) CalculateDiscount(cart Cart, reward domain.Reward) domain.RewardApplication {
	app := domain.RewardApplication{
		RewardID:     reward.ID,
		Kind:         reward.Kind,
		CartSubtotal: cart.Subtotal,
	}

	switch reward.Kind {
	case domain.RewardPercentDiscount:
		s.applyPercent(&app, cart, reward)
	case domain.RewardFixedCredit:
		s.applyFixedCredit(&app, cart, reward)
	case domain.RewardFreeDelivery:
		app.EligibleAmount = cart.DeliveryFee
		app.AppliedAmount = cart.DeliveryFee
	}

	// The platform absorbs the whole applied amount; the merchant's
	// receivable is untouched.
	app.PlatformSubsidy = app.AppliedAmount
	return app
}

func (s *RewardService) applyPercent(app *domain.RewardApplication, cart Cart, reward domain.Reward) {
	eligible := minAmount(cart.Subtotal, s.cfg.RewardMaxEligibleAmount)
	raw := int64(math.Round(float64(eligible) * float64(reward.Value) / 100))
	rawTheoretical := int64(math.Round(float64(cart.Subtotal) * float64(reward.Value) / 100))

	applied := raw
	appliedCap := ""
	if reward.MaxDiscount > 0 && applied > reward.MaxDiscount {
		applied = reward.MaxDiscount
		appliedCap = domain.CapRewardMax
	}
	if applied > s.cfg.RewardMaxDiscountPerOrder {
		applied = s.cfg.RewardMaxDiscountPerOrder
		appliedCap = domain.CapPerOrder
	}

	app.EligibleAmount = eligible
	app.AppliedAmount = applied

	if applied >= rawTheoretical {
		return
	}
	if eligible < cart.Subtotal && applied == raw {
		app.Warnings = append(app.Warnings, domain.CapWarning{
			Code: domain.CapEligibleAmount,
			Message: fmt.Sprintf("discount computed on the first %d XAF of a %d XAF cart",
				eligible, cart.Subtotal),
		})
		return
	}
	switch appliedCap {
	case domain.CapRewardMax:
		app.Warnings = append(app.Warnings, domain.CapWarning{
			Code:    domain.CapRewardMax,
			Message: fmt.Sprintf("discount capped at this reward's maximum of %d XAF", reward.MaxDiscount),
		})
	case domain.CapPerOrder:
		app.Warnings = append(app.Warnings, domain.CapWarning{
			Code:    domain.CapPerOrder,
			Message: fmt.Sprintf("discount capped at the per-order maximum of %d XAF", s.cfg.RewardMaxDiscountPerOrder),
		})
	}
}

func (s *RewardService) applyFixedCredit(app *domain.RewardApplication, cart Cart, reward domain.Reward) {
	applied := reward.Value
	appliedCap := ""
	if reward.MaxUsablePerOrder > 0 && applied > reward.MaxUsablePerOrder {
		applied = reward.MaxUsablePerOrder
		appliedCap = domain.CapRewardMax
	}
	if applied > s.cfg.RewardMaxCreditPerOrder {
		applied = s.cfg.RewardMaxCreditPerOrder
		appliedCap = domain.CapPerOrder
	}
	if applied > cart.Subtotal {
		applied = cart.Subtotal
		appliedCap = domain.CapSubtotal
	}

	app.EligibleAmount = minAmount(cart.Subtotal, reward.Value)
	app.AppliedAmount = applied

	if applied >= reward.Value {
		return
	}
	remaining := reward.Value - applied
	message := fmt.Sprintf("%d XAF of this credit could not be used on this order", remaining)
	if appliedCap == "" {
		appliedCap = domain.CapPerOrder
	}
	app.Warnings = append(app.Warnings, domain.CapWarning{Code: appliedCap, Message: message})
}

// Settle debits the loyalty fund for the subsidy of a settled order. Fund
// depletion is a warning, never a failure: orders are not blocked by an
// empty fund.
func (s *RewardService) Settle(ctx context.Context, orderID uuid.UUID, app domain.RewardApplication) (*domain.FundLedgerEntry, error) {
	if app.PlatformSubsidy <= 0 {
		return nil, nil
	}

	note := fmt.Sprintf("%s subsidy", app.Kind)
	entry, err := s.repo.DebitFund(ctx, orderID, app.PlatformSubsidy, note)
	if err != nil {
		return nil, err
	}

	debited := -entry.Amount
	if debited < app.PlatformSubsidy {
		s.logger.Warn("loyalty fund depleted, subsidy only partially covered",
			"order_id", orderID, "subsidy", app.PlatformSubsidy, "debited", debited)
	}
	if entry.BalanceAfter < s.cfg.LoyaltyFundLowWatermark {
		s.logger.Warn("loyalty fund running low", "balance", entry.BalanceAfter, "watermark", s.cfg.LoyaltyFundLowWatermark)
	}
	return entry, nil
}

// FundBalance returns the current loyalty fund state for the admin surface.
func (s *RewardService) FundBalance(ctx context.Context) (*domain.LoyaltyFund, error) {
	return s.repo.GetFund(ctx)
}

// TopUpFund credits the loyalty fund (admin only).
func (s *RewardService) TopUpFund(ctx context.Context, amount int64, note string) (*domain.FundLedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.CreditFund(ctx, amount, note)
}

func minAmount(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
