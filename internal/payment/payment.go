// Package payment defines the boundary to the hosted-checkout payment
// provider. The core only ever talks to the Provider interface; wiring picks
// the concrete implementation.
package payment

import (
	"context"
	"errors"
	"time"
)

// Session statuses as reported by the provider.
const (
	StatusOpen     = "open"
	StatusComplete = "complete"
	StatusExpired  = "expired"
)

// ErrSessionNotFound is returned when the provider has no such session.
var ErrSessionNotFound = errors.New("payment session not found")

// LineItem is one display line on the hosted checkout page. Synthetic tax and
// fee lines use quantity 1.
type LineItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
	Quantity    int64  `json:"quantity"`
}

// Session is the provider's view of a checkout.
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"payment_intent_id"`
	AmountTotal     int64             `json:"amount_total"`
	Metadata        map[string]string `json:"metadata"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// CreateSessionRequest carries everything the provider needs to host a
// checkout page.
type CreateSessionRequest struct {
	LineItems  []LineItem
	Metadata   map[string]string
	ExpiresAt  time.Time
	SuccessURL string
	CancelURL  string
}

// Provider is the payment provider the checkout flow depends on.
type Provider interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, metadata map[string]string) (string, error)
}
