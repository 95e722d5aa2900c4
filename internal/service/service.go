// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer. Concurrency-sensitive
// writes (inventory checks, checkout reconciliation, transfer completion)
// are delegated to the repositories, which own the transactions and row
// locks; this layer owns the rule sets and the error taxonomy.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/shopspring/decimal"
)

// ErrSessionNotComplete is returned when reconciliation is attempted for a
// payment session the provider does not report as complete.
var ErrSessionNotComplete = errors.New("payment session is not complete")

// ErrAlreadyRefunded is returned on a refund replay; callers treat it as a
// quiet no-op.
var ErrAlreadyRefunded = errors.New("order already refunded")

// ErrNotRefundable is returned when a ticket on the order has been
// transferred away from the purchaser.
var ErrNotRefundable = errors.New("order is not refundable")

// ErrForbidden is returned when the acting user may not perform the
// operation on this resource.
var ErrForbidden = errors.New("operation not allowed for this user")

// ErrProviderFailure wraps payment provider API errors. Local state is never
// changed when it is returned.
var ErrProviderFailure = errors.New("payment provider request failed")

// UserReader is the account lookup the services need to resolve emails and
// notification recipients.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// ReservedReader is the read surface over reserved tickets shared by the
// cart, checkout, and transfer services.
type ReservedReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]model.ReservedTicket, error)
}

// Pricer computes the tax/fee breakdown for a subtotal using the configured
// rates.
type Pricer struct {
	TaxRate      decimal.Decimal
	FeeRate      decimal.Decimal
	FeeFlatCents int64
}

// Totals returns the full financial breakdown for a subtotal in cents.
func (p Pricer) Totals(subtotalCents int64) model.CartTotals {
	tax, fees := model.TaxesAndFees(subtotalCents, p.TaxRate, p.FeeRate, p.FeeFlatCents)
	return model.CartTotals{Subtotal: subtotalCents, Tax: tax, Fees: fees}
}

// normalizeEmail lowercases and trims an address for comparison and storage.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
