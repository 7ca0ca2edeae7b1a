/**
 * @description
 * This file defines the loyalty reward models: the reward definitions a
 * customer can apply at checkout, the per-order application computed from
 * them, and the platform fund that subsidizes applied rewards.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reward kinds.
const (
	RewardPercentDiscount = "percent_discount"
	RewardFixedCredit     = "fixed_credit"
	RewardFreeDelivery    = "free_delivery"
)

// Reward is a redeemable loyalty reward definition.
type Reward struct {
	ID                uuid.UUID `json:"id"`
	Kind              string    `json:"kind"`
	Value             int64     `json:"value"` // percent for discounts, XAF for credits
	MaxDiscount       int64     `json:"max_discount"`
	MaxUsablePerOrder int64     `json:"max_usable_per_order"`
}

// Capping warning codes attached to a reward application when the applied
// amount came out lower than the reward's face value.
const (
	CapEligibleAmount = "eligible_amount_cap"
	CapPerOrder       = "per_order_cap"
	CapRewardMax      = "reward_max_cap"
	CapSubtotal       = "subtotal_cap"
)

// CapWarning explains why an applied reward amount was reduced.
type CapWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RewardApplication is the computed, per-order outcome of applying a reward
// to a cart. It is ephemeral until the order settles, at which point the
// platform subsidy is debited from the loyalty fund.
type RewardApplication struct {
	RewardID        uuid.UUID    `json:"reward_id"`
	Kind            string       `json:"kind"`
	CartSubtotal    int64        `json:"cart_subtotal"`
	EligibleAmount  int64        `json:"eligible_amount"`
	AppliedAmount   int64        `json:"applied_amount"`
	PlatformSubsidy int64        `json:"platform_subsidy"`
	Warnings        []CapWarning `json:"warnings,omitempty"`
}

// LoyaltyFund is the single process-wide fund balance that absorbs reward
// subsidies. The balance is floored at zero; depletion warns, never blocks.
type LoyaltyFund struct {
	ID        uuid.UUID `json:"id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FundLedgerEntry is one debit (or admin top-up) against the loyalty fund,
// referencing the order that caused it.
type FundLedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	OrderID      *uuid.UUID `json:"order_id,omitempty"`
	Amount       int64      `json:"amount"` // negative for debits
	BalanceAfter int64      `json:"balance_after"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
