// Package notify dispatches outbound user notifications. Delivery is
// fire-and-forget through a durable message queue; a mailer worker consumes
// the queue with at-least-once semantics. Publish failures are logged and
// never propagate into the state change that triggered the notification.
package notify

import (
	"context"
	"log"
)

// Kind selects the mail template the consumer renders.
type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindOrderRefunded     Kind = "order_refunded"
	KindTicketTransfer    Kind = "ticket_transfer"
	KindReservedTicket    Kind = "reserved_ticket"
)

// Message is the queued notification payload.
type Message struct {
	Recipient string         `json:"recipient"`
	Kind      Kind           `json:"kind"`
	Data      map[string]any `json:"data"`
}

// Notifier queues a notification for delivery.
type Notifier interface {
	Send(ctx context.Context, recipient string, kind Kind, data map[string]any) error
}

// LogNotifier writes notifications to the process log. Used in development
// when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, recipient string, kind Kind, data map[string]any) error {
	log.Printf("notify %s: %s %v", recipient, kind, data)
	return nil
}
