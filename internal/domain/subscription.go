/**
 * @description
 * This file defines the core domain models for merchant subscriptions.
 * A subscription is the single per-merchant record that gates storefront
 * visibility and tier limits. Status transitions are driven both lazily
 * (on read) and by the scheduler sweeps.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses. Stored as plain strings in the database.
const (
	SubscriptionStatusTrial          = "trial"
	SubscriptionStatusPendingPayment = "pending_payment"
	SubscriptionStatusActive         = "active"
	SubscriptionStatusSuspended      = "suspended"
	SubscriptionStatusCancelled      = "cancelled"
)

// Subscription represents a merchant's subscription record.
// Exactly one exists per merchant; it is never hard-deleted (cancelled rows
// are retained for history).
type Subscription struct {
	ID             uuid.UUID `json:"id"`
	MerchantID     uuid.UUID `json:"merchant_id"`
	SelectedTierID string    `json:"selected_tier_id"` // tier billed after trial
	GrantedTierID  string    `json:"granted_tier_id"`  // tier currently in effect
	Status         string    `json:"status"`
	TrialEnd       time.Time `json:"trial_end"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	ReminderAt     time.Time `json:"reminder_at"`
	ReminderSent   bool      `json:"reminder_sent"`
	AutoRenew      bool      `json:"auto_renew"`
	IsActive       bool      `json:"is_active"` // mirrored onto the merchant record
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CanHoldActiveFlag reports whether the status permits is_active = true.
// Only trial and active subscriptions make the storefront visible.
func CanHoldActiveFlag(status string) bool {
	return status == SubscriptionStatusTrial || status == SubscriptionStatusActive
}

// SubscriptionStatusView is the DTO returned to clients asking for their
// subscription state, including usage context the UI renders as "used/max".
type SubscriptionStatusView struct {
	Status         string     `json:"status"`
	SelectedTierID string     `json:"selected_tier_id"`
	GrantedTierID  string     `json:"granted_tier_id"`
	IsActive       bool       `json:"is_active"`
	TrialEnd       *time.Time `json:"trial_end,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	AutoRenew      bool       `json:"auto_renew"`
}

// ReminderPayload is the notification payload yielded for each subscription
// whose renewal reminder has come due.
type ReminderPayload struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	MerchantID     uuid.UUID `json:"merchant_id"`
	Status         string    `json:"status"`
	PeriodEnd      time.Time `json:"period_end"`
}
