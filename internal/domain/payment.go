/**
 * @description
 * This file defines the domain models for the peer-confirmed payment
 * settlement protocol. A payment intent is created per (order, merchant)
 * pair; a multi-merchant cart yields one intent per merchant. Amounts are
 * `int64` XAF to avoid floating-point inaccuracies with money.
 *
 * @notes
 * - The commission rate is snapshotted at creation and never recomputed, so
 *   `commission_amount + merchant_net_amount == gross_amount` holds for the
 *   lifetime of the intent.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment intent statuses.
const (
	IntentStatusPending           = "pending"
	IntentStatusCustomerConfirmed = "customer_confirmed"
	IntentStatusMerchantConfirmed = "merchant_confirmed"
	IntentStatusCancelled         = "cancelled"
)

// PaymentIntent is the central settlement record for one merchant's share of
// an order. It maps directly to the `payment_intents` table.
type PaymentIntent struct {
	ID                    uuid.UUID `json:"id"`
	OrderID               uuid.UUID `json:"order_id"`
	MerchantID            uuid.UUID `json:"merchant_id"`
	CustomerID            uuid.UUID `json:"customer_id"`
	GrossAmount           int64     `json:"gross_amount"`
	CommissionAmount      int64     `json:"commission_amount"`
	CommissionRatePercent float64   `json:"commission_rate_percent"`
	MerchantNetAmount     int64     `json:"merchant_net_amount"`
	Status                string    `json:"status"`
	CancelReason          *string   `json:"cancel_reason,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	ExpiresAt             time.Time `json:"expires_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MerchantShare is one merchant's portion of a multi-merchant order,
// used when creating intents for a whole cart.
type MerchantShare struct {
	MerchantID  uuid.UUID `json:"merchant_id"`
	GrossAmount int64     `json:"gross_amount"`
}

// ReferralCredit records a fixed commission credited to a referrer when a
// merchant confirms a payment on an order tagged with the referrer's code.
// The unique intent reference backs up the exactly-once guarantee.
type ReferralCredit struct {
	ID         uuid.UUID `json:"id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	IntentID   uuid.UUID `json:"intent_id"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}
