package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func saleWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func snapshot(now time.Time, quantity, purchased, inCart int) *InventorySnapshot {
	start, end := saleWindow(now)
	return &InventorySnapshot{
		TicketType: TicketType{
			ID:        "tt-1",
			EventID:   "ev-1",
			Name:      "General Admission",
			Price:     decimal.NewFromInt(20),
			Quantity:  quantity,
			SaleStart: start,
			SaleEnd:   end,
			Active:    true,
		},
		PurchasedCount: purchased,
		InCartQuantity: inCart,
	}
}

func TestInventorySnapshot_Remaining(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 3, snapshot(now, 5, 2, 0).Remaining())
	assert.Equal(t, 1, snapshot(now, 5, 2, 2).Remaining())
	assert.Equal(t, 0, snapshot(now, 5, 5, 0).Remaining())
	// Counts can transiently overshoot while carts expire; never negative.
	assert.Equal(t, 0, snapshot(now, 5, 5, 2).Remaining())
	assert.Equal(t, Unlimited, snapshot(now, 0, 100, 50).Remaining())
}

func TestInventorySnapshot_IsAvailable(t *testing.T) {
	now := time.Now()

	assert.True(t, snapshot(now, 5, 0, 0).IsAvailable(now))
	assert.True(t, snapshot(now, 0, 9999, 0).IsAvailable(now), "unlimited is always in stock")
	assert.False(t, snapshot(now, 5, 5, 0).IsAvailable(now), "sold out")
	assert.False(t, snapshot(now, 5, 3, 2).IsAvailable(now), "held in carts")

	inactive := snapshot(now, 5, 0, 0)
	inactive.Active = false
	assert.False(t, inactive.IsAvailable(now))

	early := snapshot(now, 5, 0, 0)
	assert.False(t, early.IsAvailable(now.Add(-2*time.Hour)), "before sale start")
	assert.False(t, early.IsAvailable(now.Add(2*time.Hour)), "after sale end")
}

func TestInventorySnapshot_HasAvailable(t *testing.T) {
	now := time.Now()

	assert.True(t, snapshot(now, 5, 2, 0).HasAvailable(3, now))
	assert.False(t, snapshot(now, 5, 2, 0).HasAvailable(4, now))
	assert.True(t, snapshot(now, 0, 0, 0).HasAvailable(1000, now))
}

func TestCart_StatusDerivation(t *testing.T) {
	now := time.Now()
	cart := &Cart{ExpirationDate: now.Add(30 * time.Minute)}

	assert.Equal(t, CartActive, cart.Status(now))

	assert.Equal(t, CartExpired, cart.Status(now.Add(31*time.Minute)))
	assert.Equal(t, CartExpired, cart.Status(cart.ExpirationDate), "expiry instant counts as expired")

	// Completed wins even after the expiration date passes.
	cart.HasOrder = true
	assert.Equal(t, CartCompleted, cart.Status(now))
	assert.Equal(t, CartCompleted, cart.Status(now.Add(time.Hour)))
}

func TestCart_QuantityAndSubtotal(t *testing.T) {
	cart := &Cart{
		Items: []CartItem{
			{TicketTypeID: "tt-1", UnitPrice: decimal.NewFromFloat(20.00), Quantity: 2},
			{TicketTypeID: "tt-2", UnitPrice: decimal.NewFromFloat(7.50), Quantity: 1},
		},
	}

	assert.Equal(t, 3, cart.Quantity())
	assert.Equal(t, int64(4750), cart.SubtotalCents())
}

func TestOrder_Refundable(t *testing.T) {
	order := &Order{ID: "ord-1", UserID: "user-1"}
	owned := []PurchasedTicket{
		{ID: "pt-1", UserID: "user-1", OrderID: "ord-1"},
		{ID: "pt-2", UserID: "user-1", OrderID: "ord-1"},
	}

	assert.True(t, order.Refundable(owned))

	// Transferring any ticket away blocks the refund.
	transferred := []PurchasedTicket{owned[0], {ID: "pt-2", UserID: "user-2", OrderID: "ord-1"}}
	assert.False(t, order.Refundable(transferred))

	order.Refunded = true
	assert.False(t, order.Refundable(owned))
}

func TestReservedTicket_CanBePurchased(t *testing.T) {
	now := time.Now()
	reserved := &ReservedTicket{ExpirationDate: now.Add(24 * time.Hour)}

	assert.True(t, reserved.CanBePurchased(now))
	assert.False(t, reserved.CanBePurchased(now.Add(25*time.Hour)), "expired")

	reserved.IsPurchased = true
	assert.False(t, reserved.CanBePurchased(now), "frozen once purchased")
}

func TestTicketTransfer_Authorization(t *testing.T) {
	transfer := &TicketTransfer{
		SenderUserID:   "user-1",
		RecipientEmail: "friend@example.com",
	}

	assert.True(t, transfer.CompletableBy("friend@example.com"))
	assert.True(t, transfer.CompletableBy("Friend@Example.COM"), "email match is case-insensitive")
	assert.True(t, transfer.CompletableBy("  friend@example.com "))
	assert.False(t, transfer.CompletableBy("stranger@example.com"))

	assert.True(t, transfer.DeletableBy("user-1"))
	assert.False(t, transfer.DeletableBy("user-2"))

	transfer.Completed = true
	assert.False(t, transfer.DeletableBy("user-1"), "completed transfers cannot be deleted")
}

func TestTicketType_PriceCents(t *testing.T) {
	tt := TicketType{Price: decimal.NewFromFloat(19.99)}
	assert.Equal(t, int64(1999), tt.PriceCents())

	free := TicketType{Price: decimal.Zero}
	assert.Equal(t, int64(0), free.PriceCents())
	assert.True(t, free.IsFree())
}
