/**
 * @description
 * Event payloads published to the message broker for consumption by the
 * notification pipeline and analytics.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationEvent is the payload published on "notification.send" for the
// push/in-app delivery pipeline. Delivery is fire-and-forget: a publish
// failure is logged and never rolls back the state change that caused it.
type NotificationEvent struct {
	RecipientID uuid.UUID         `json:"recipient_id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// SettlementEvent is published when a payment intent reaches its terminal
// confirmed state.
type SettlementEvent struct {
	IntentID          uuid.UUID `json:"intent_id"`
	OrderID           uuid.UUID `json:"order_id"`
	MerchantID        uuid.UUID `json:"merchant_id"`
	GrossAmount       int64     `json:"gross_amount"`
	CommissionAmount  int64     `json:"commission_amount"`
	MerchantNetAmount int64     `json:"merchant_net_amount"`
	Timestamp         time.Time `json:"timestamp"`
}
