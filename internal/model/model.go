// Package model defines the core domain types for the ticketing system.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event represents a ticketed event run by staff.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a minimal account record; authentication lives in the fronting layer.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketType is a sellable category of admission or addon for an event.
// Quantity 0 means unlimited. Price is locked once any ticket has been sold.
type TicketType struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	SaleStart    time.Time       `json:"sale_start"`
	SaleEnd      time.Time       `json:"sale_end"`
	Active       bool            `json:"active"`
	Transferable bool            `json:"transferable"`
	Addon        bool            `json:"addon"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PriceCents returns the unit price in integer cents.
func (t *TicketType) PriceCents() int64 {
	return t.Price.Shift(2).Round(0).IntPart()
}

// IsFree reports whether the ticket type costs nothing.
func (t *TicketType) IsFree() bool {
	return t.Price.IsZero()
}

// Unlimited is the Remaining() sentinel for ticket types with no quantity cap.
const Unlimited = -1

// InventorySnapshot is a point-in-time view of a ticket type's inventory,
// computed fresh from persisted rows on every check. Quantities held in
// non-expired, order-less carts count against remaining capacity.
type InventorySnapshot struct {
	TicketType
	PurchasedCount int `json:"purchased_count"`
	InCartQuantity int `json:"in_cart_quantity"`
}

// Remaining returns the number of sellable units left, or Unlimited when the
// ticket type has no quantity cap.
func (s *InventorySnapshot) Remaining() int {
	if s.Quantity == 0 {
		return Unlimited
	}
	r := s.Quantity - s.PurchasedCount - s.InCartQuantity
	if r < 0 {
		r = 0
	}
	return r
}

// IsAvailable reports whether the ticket type can currently be sold: publicly
// active, inside its sale window, and with at least one unit remaining.
func (s *InventorySnapshot) IsAvailable(now time.Time) bool {
	if !s.Active {
		return false
	}
	if now.Before(s.SaleStart) || now.After(s.SaleEnd) {
		return false
	}
	return s.Quantity == 0 || s.Remaining() > 0
}

// HasAvailable reports whether n units can currently be sold.
func (s *InventorySnapshot) HasAvailable(n int, now time.Time) bool {
	if !s.IsAvailable(now) {
		return false
	}
	return s.Quantity == 0 || s.Remaining() >= n
}

// CartStatus is derived from persisted state, never stored.
type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartExpired   CartStatus = "expired"
	CartCompleted CartStatus = "completed"
)

// Cart is a user's in-progress, time-limited purchase intent.
type Cart struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	EventID           string     `json:"event_id"`
	ExpirationDate    time.Time  `json:"expiration_date"`
	ProviderSessionID string     `json:"provider_session_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Items             []CartItem `json:"items"`
	ReservedTicketIDs []string   `json:"reserved_ticket_ids,omitempty"`

	// HasOrder is populated by the repository (EXISTS on orders.cart_id).
	HasOrder bool `json:"has_order"`
}

// Status derives the cart lifecycle state. Exactly one of the three statuses
// holds at any instant; Completed wins over Expired.
func (c *Cart) Status(now time.Time) CartStatus {
	switch {
	case c.HasOrder:
		return CartCompleted
	case !now.Before(c.ExpirationDate):
		return CartExpired
	default:
		return CartActive
	}
}

// Quantity is the total number of units across all cart items.
func (c *Cart) Quantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// SubtotalCents sums item quantities at their unit prices.
func (c *Cart) SubtotalCents() int64 {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal.Shift(2).Round(0).IntPart()
}

// CartItem is one ticket-type line in a cart. Created with the cart and
// read-only afterward. Name and unit price are joined in from the ticket type.
type CartItem struct {
	ID             string          `json:"id"`
	CartID         string          `json:"cart_id"`
	TicketTypeID   string          `json:"ticket_type_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
}

// CartTotals is the computed financial breakdown of a cart, in cents.
type CartTotals struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Fees     int64 `json:"fees"`
}

// Total is the amount the payment provider will charge.
func (t CartTotals) Total() int64 {
	return t.Subtotal + t.Tax + t.Fees
}

// Order is the durable record of a completed, paid purchase. At most one order
// exists per payment-provider session id.
type Order struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	EventID           string    `json:"event_id"`
	CartID            string    `json:"cart_id"`
	ProviderSessionID string    `json:"provider_session_id"`
	AmountSubtotal    int64     `json:"amount_subtotal"`
	AmountTax         int64     `json:"amount_tax"`
	AmountFees        int64     `json:"amount_fees"`
	AmountTotal       int64     `json:"amount_total"`
	Quantity          int       `json:"quantity"`
	Refunded          bool      `json:"refunded"`
	TicketData        []byte    `json:"ticket_data,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Refundable reports whether the order can still be refunded: not already
// refunded, and every purchased ticket on it still owned by the purchaser.
// A transferred ticket permanently blocks the refund.
func (o *Order) Refundable(tickets []PurchasedTicket) bool {
	if o.Refunded {
		return false
	}
	for _, t := range tickets {
		if t.UserID != o.UserID {
			return false
		}
	}
	return true
}

// PurchasedTicket is one concrete, owned admission/addon unit. Ownership
// changes only through transfer completion; rows are deleted on refund.
type PurchasedTicket struct {
	ID               string    `json:"id"`
	TicketTypeID     string    `json:"ticket_type_id"`
	UserID           string    `json:"user_id"`
	OrderID          string    `json:"order_id,omitempty"`
	ReservedTicketID string    `json:"reserved_ticket_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReservedTicket is a pre-authorized, not-yet-claimed allocation for a
// specific person. Frozen once a PurchasedTicket references it.
type ReservedTicket struct {
	ID             string          `json:"id"`
	TicketTypeID   string          `json:"ticket_type_id"`
	EventID        string          `json:"event_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	Price          decimal.Decimal `json:"price"`
	Email          string          `json:"email"`
	UserID         string          `json:"user_id,omitempty"`
	CartID         string          `json:"cart_id,omitempty"`
	ExpirationDate time.Time       `json:"expiration_date"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`

	// IsPurchased is populated by the repository (EXISTS on
	// purchased_tickets.reserved_ticket_id).
	IsPurchased bool `json:"is_purchased"`
}

// CanBePurchased reports whether the reservation is still claimable.
func (r *ReservedTicket) CanBePurchased(now time.Time) bool {
	return !r.IsPurchased && now.Before(r.ExpirationDate)
}

// TicketKind tags which table a transfer item points at.
type TicketKind string

const (
	KindPurchased TicketKind = "purchased"
	KindReserved  TicketKind = "reserved"
)

// TransferItem is one ticket attached to a transfer.
type TransferItem struct {
	Kind     TicketKind `json:"kind"`
	TicketID string     `json:"ticket_id"`
}

// TicketTransfer moves ownership of a set of tickets from a sender to a
// recipient identified by email. Lifecycle: pending → completed, one way;
// deletion while pending substitutes for cancellation.
type TicketTransfer struct {
	ID              string         `json:"id"`
	SenderUserID    string         `json:"sender_user_id"`
	RecipientEmail  string         `json:"recipient_email"`
	RecipientUserID string         `json:"recipient_user_id,omitempty"`
	Completed       bool           `json:"completed"`
	Items           []TransferItem `json:"items"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// CompletableBy reports whether the given email may complete the transfer.
func (t *TicketTransfer) CompletableBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), t.RecipientEmail)
}

// DeletableBy reports whether the given user may delete the transfer.
func (t *TicketTransfer) DeletableBy(userID string) bool {
	return !t.Completed && t.SenderUserID == userID
}

// ValidationError aggregates every business rule a submission violated so the
// user sees all problems at once.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Reasons, "; ")
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}
