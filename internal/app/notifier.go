/**
 * @description
 * Notification delivery capability consumed by the services. Notifications
 * are fire-and-forget: a failure is logged and must never fail or roll back
 * the state transition that triggered it.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pipomarket/settlement-service/internal/domain"
)

// EventsExchange is the topic exchange all service events are published to.
const EventsExchange = "pipomarket.events"

// Notifier is the capability the services use to reach a user. The
// production implementation publishes to the notification pipeline; tests
// use a recording stub.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, title, body string, metadata map[string]string) error
}

// EventPublisher defines the interface for publishing events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// EventNotifier implements Notifier on top of the broker: each notification
// becomes a "notification.send" event consumed by the delivery pipeline.
type EventNotifier struct {
	publisher EventPublisher
}

// NewEventNotifier creates a broker-backed notifier.
func NewEventNotifier(publisher EventPublisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

// Notify publishes the notification event.
func (n *EventNotifier) Notify(ctx context.Context, recipientID uuid.UUID, title, body string, metadata map[string]string) error {
	return n.publisher.Publish(ctx, EventsExchange, "notification.send", domain.NotificationEvent{
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Metadata:    metadata,
		Timestamp:   time.Now(),
	})
}

// notify sends a notification and swallows the failure with a WARN log.
func notify(ctx context.Context, logger *slog.Logger, n Notifier, recipientID uuid.UUID, title, body string, metadata map[string]string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, recipientID, title, body, metadata); err != nil {
		logger.Warn("failed to send notification", "recipient_id", recipientID, "title", title, "error", err)
	}
}
