package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/monitoring"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/payment"
	"github.com/emberfield/boxoffice/internal/repository"
)

// CheckoutCartStore is the cart surface the checkout flow needs.
type CheckoutCartStore interface {
	GetByID(ctx context.Context, id string) (*model.Cart, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Cart, error)
	SetProviderSession(ctx context.Context, cartID, sessionID string) error
}

// OrderStore is the persistence surface for orders and their tickets.
type OrderStore interface {
	CreateFromCart(ctx context.Context, order *model.Order, cart *model.Cart) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Order, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]model.PurchasedTicket, error)
	MarkRefunded(ctx context.Context, orderID string) error
}

// CheckoutService creates payment sessions for carts, reconciles completed
// sessions into orders, and processes refunds. Reconciliation is exactly-once
// per provider session; replays return the already-created order unchanged.
type CheckoutService struct {
	carts      CheckoutCartStore
	orders     OrderStore
	reserved   ReservedReader
	users      UserReader
	provider   payment.Provider
	notifier   notify.Notifier
	pricer     Pricer
	successURL string
	cancelURL  string
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(carts CheckoutCartStore, orders OrderStore, reserved ReservedReader, users UserReader, provider payment.Provider, notifier notify.Notifier, pricer Pricer, successURL, cancelURL string) *CheckoutService {
	return &CheckoutService{
		carts:      carts,
		orders:     orders,
		reserved:   reserved,
		users:      users,
		provider:   provider,
		notifier:   notifier,
		pricer:     pricer,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// sessionGrace keeps the provider session usable slightly past the cart's own
// expiry, so a payment started at the last moment can still finish.
const sessionGrace = 10 * time.Minute

// CreateCheckout opens a hosted checkout session for the user's cart. Line
// items mirror the cart items plus the claimed reserved tickets, with
// synthetic tax and fee lines when the cart is not free.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, cartID string) (*payment.Session, error) {
	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.UserID != userID {
		return nil, ErrForbidden
	}
	if status := cart.Status(time.Now().UTC()); status != model.CartActive {
		return nil, &model.ValidationError{Reasons: []string{fmt.Sprintf("cart is %s", status)}}
	}

	reserved, err := s.claimedReserved(ctx, cart)
	if err != nil {
		return nil, err
	}

	lineItems := make([]payment.LineItem, 0, len(cart.Items)+len(reserved)+2)
	for _, item := range cart.Items {
		lineItems = append(lineItems, payment.LineItem{
			Name:        item.TicketTypeName,
			AmountCents: item.UnitPrice.Shift(2).Round(0).IntPart(),
			Quantity:    int64(item.Quantity),
		})
	}
	for _, t := range reserved {
		lineItems = append(lineItems, payment.LineItem{
			Name:        fmt.Sprintf("%s (reserved)", t.TicketTypeName),
			AmountCents: t.Price.Shift(2).Round(0).IntPart(),
			Quantity:    1,
		})
	}

	totals := s.pricer.Totals(subtotalCents(cart, reserved))
	if totals.Subtotal > 0 {
		lineItems = append(lineItems,
			payment.LineItem{Name: "Tax", AmountCents: totals.Tax, Quantity: 1},
			payment.LineItem{Name: "Fees", AmountCents: totals.Fees, Quantity: 1},
		)
	}

	session, err := s.provider.CreateSession(ctx, payment.CreateSessionRequest{
		LineItems: lineItems,
		Metadata: map[string]string{
			"cart_id":  cart.ID,
			"user_id":  cart.UserID,
			"event_id": cart.EventID,
			"quantity": fmt.Sprintf("%d", cart.Quantity()+len(reserved)),
		},
		ExpiresAt:  cart.ExpirationDate.Add(sessionGrace),
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	if err := s.carts.SetProviderSession(ctx, cart.ID, session.ID); err != nil {
		return nil, err
	}

	monitoring.TrackCheckoutSession()
	return session, nil
}

// ResolveCompletedSession turns a completed payment session into an order,
// issuing the tickets and converting the cart's reserved claims. Safe to call
// any number of times for the same session: replays return the existing order.
func (s *CheckoutService) ResolveCompletedSession(ctx context.Context, sessionID string) (*model.Order, error) {
	start := time.Now()
	defer func() { monitoring.TrackReconcileDuration(time.Since(start)) }()

	if existing, err := s.orders.GetBySessionID(ctx, sessionID); err == nil {
		monitoring.TrackWebhookResolution("replay")
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, repository.ErrNotFound
		}
		monitoring.TrackWebhookResolution("error")
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	if session.Status != payment.StatusComplete {
		return nil, ErrSessionNotComplete
	}

	cart, err := s.carts.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.claimedReserved(ctx, cart)
	if err != nil {
		return nil, err
	}
	totals := s.pricer.Totals(subtotalCents(cart, reserved))

	// Snapshot of what was sold, immune to later ticket-type edits.
	ticketData, err := json.Marshal(map[string]any{
		"items":            cart.Items,
		"reserved_tickets": cart.ReservedTicketIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ticket data: %w", err)
	}

	order := &model.Order{
		UserID:            cart.UserID,
		EventID:           cart.EventID,
		CartID:            cart.ID,
		ProviderSessionID: sessionID,
		AmountSubtotal:    totals.Subtotal,
		AmountTax:         totals.Tax,
		AmountFees:        totals.Fees,
		AmountTotal:       totals.Total(),
		Quantity:          cart.Quantity() + len(reserved),
		TicketData:        ticketData,
	}

	if err := s.orders.CreateFromCart(ctx, order, cart); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			existing, getErr := s.orders.GetBySessionID(ctx, sessionID)
			if getErr != nil {
				return nil, getErr
			}
			monitoring.TrackWebhookResolution("replay")
			return existing, nil
		}
		monitoring.TrackWebhookResolution("error")
		return nil, err
	}

	s.notifyOwner(ctx, order.UserID, notify.KindOrderConfirmation, map[string]any{
		"order_id":     order.ID,
		"event_id":     order.EventID,
		"quantity":     order.Quantity,
		"amount_total": order.AmountTotal,
	})

	monitoring.TrackWebhookResolution("created")
	return order, nil
}

// GetOrder returns an order visible to its purchaser.
func (s *CheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

// Refund reverses a paid order with the provider, then voids the local order
// and its tickets. Repeated calls return ErrAlreadyRefunded, which callers
// surface as a no-op.
func (s *CheckoutService) Refund(ctx context.Context, userID, orderID string) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Refunded {
		return order, ErrAlreadyRefunded
	}

	tickets, err := s.orders.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Refundable(tickets) {
		monitoring.TrackRefund("blocked")
		return nil, ErrNotRefundable
	}

	session, err := s.provider.GetSession(ctx, order.ProviderSessionID)
	if err != nil {
		monitoring.TrackRefund("provider_error")
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	_, err = s.provider.Refund(ctx, session.PaymentIntentID, order.AmountTotal, map[string]string{
		"order_id": order.ID,
	})
	if err != nil {
		monitoring.TrackRefund("provider_error")
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	if err := s.orders.MarkRefunded(ctx, orderID); err != nil {
		if errors.Is(err, repository.ErrTicketTransferred) {
			log.Printf("refund: order %s tickets changed owner after provider refund; needs manual reconciliation", orderID)
			monitoring.TrackRefund("blocked")
			return nil, ErrNotRefundable
		}
		return nil, err
	}
	order.Refunded = true

	s.notifyOwner(ctx, order.UserID, notify.KindOrderRefunded, map[string]any{
		"order_id":     order.ID,
		"amount_total": order.AmountTotal,
	})

	monitoring.TrackRefund("refunded")
	return order, nil
}

// claimedReserved loads the reserved tickets attached to the cart.
func (s *CheckoutService) claimedReserved(ctx context.Context, cart *model.Cart) ([]model.ReservedTicket, error) {
	if len(cart.ReservedTicketIDs) == 0 {
		return nil, nil
	}
	return s.reserved.GetByIDs(ctx, cart.ReservedTicketIDs)
}

// subtotalCents prices the cart items plus the claimed reserved tickets at
// their ticket type prices.
func subtotalCents(cart *model.Cart, reserved []model.ReservedTicket) int64 {
	subtotal := cart.SubtotalCents()
	for _, t := range reserved {
		subtotal += t.Price.Shift(2).Round(0).IntPart()
	}
	return subtotal
}

// notifyOwner queues a notification for the user, logging delivery failures
// instead of failing the state change that triggered them.
func (s *CheckoutService) notifyOwner(ctx context.Context, userID string, kind notify.Kind, data map[string]any) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		log.Printf("notify: resolve user %s: %v", userID, err)
		return
	}
	if err := s.notifier.Send(ctx, user.Email, kind, data); err != nil {
		log.Printf("notify: send %s to %s: %v", kind, user.Email, err)
	}
}
