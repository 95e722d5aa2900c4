package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPricer() Pricer {
	return Pricer{
		TaxRate:      decimal.RequireFromString("0.07"),
		FeeRate:      decimal.RequireFromString("0.029"),
		FeeFlatCents: 30,
	}
}

func gaSnapshot(quantity, purchased, inCart int) *model.InventorySnapshot {
	now := time.Now().UTC()
	return &model.InventorySnapshot{
		TicketType: model.TicketType{
			ID:        "tt-ga",
			EventID:   "ev-1",
			Name:      "General Admission",
			Price:     decimal.NewFromInt(25),
			Quantity:  quantity,
			SaleStart: now.Add(-time.Hour),
			SaleEnd:   now.Add(time.Hour),
			Active:    true,
		},
		PurchasedCount: purchased,
		InCartQuantity: inCart,
	}
}

func newTestCartService(carts *fakeCartStore, inv *fakeInventory, reserved *fakeReservedStore) *CartService {
	return NewCartService(carts, inv, reserved, testPricer(), 30*time.Minute, 4)
}

func TestCartService_Create(t *testing.T) {
	carts := newFakeCartStore()
	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}}
	svc := newTestCartService(carts, inv, newFakeReservedStore())

	cart, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, "user-1", cart.UserID)
	assert.Equal(t, 2, cart.Quantity())
	assert.Equal(t, model.CartActive, cart.Status(time.Now().UTC()))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "General Admission", cart.Items[0].TicketTypeName)
	assert.Equal(t, int64(5000), cart.SubtotalCents())
}

func TestCartService_CreateExpiresPreviousCart(t *testing.T) {
	carts := newFakeCartStore()
	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}}
	svc := newTestCartService(carts, inv, newFakeReservedStore())

	first, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, model.CartExpired, carts.carts[first.ID].Status(now))
	assert.Equal(t, model.CartActive, carts.carts[second.ID].Status(now))

	active, err := svc.Active(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestCartService_CreateReplacesCartHoldingLastTicket(t *testing.T) {
	carts := newFakeCartStore()
	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(1, 0, 0)}, carts: carts}
	svc := newTestCartService(carts, inv, newFakeReservedStore())

	first, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})
	require.NoError(t, err)

	// Other users see the unit as held.
	_, err = svc.Create(context.Background(), "user-2", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	// The holder's own cart is expired first, so re-creating it succeeds.
	second, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, model.CartExpired, carts.carts[first.ID].Status(now))
	assert.Equal(t, model.CartActive, carts.carts[second.ID].Status(now))
}

func TestCartService_CreateAggregatesValidationFailures(t *testing.T) {
	snaps := map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}
	soldOut := gaSnapshot(5, 5, 0)
	soldOut.ID = "tt-vip"
	soldOut.Name = "VIP"
	snaps["tt-vip"] = soldOut

	svc := newTestCartService(newFakeCartStore(), &fakeInventory{snaps: snaps}, newFakeReservedStore())

	_, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{
			{TicketTypeID: "tt-ga", Quantity: 3},
			{TicketTypeID: "tt-ga", Quantity: 1},
			{TicketTypeID: "tt-vip", Quantity: 1},
			{TicketTypeID: "tt-missing", Quantity: 1},
		},
	})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "ticket type tt-ga appears more than once")
	assert.Contains(t, verr.Reasons, "you can only purchase up to 4 tickets at a time")
	assert.Contains(t, verr.Reasons, "tickets of type VIP are not currently on sale")
	assert.Contains(t, verr.Reasons, "ticket type tt-missing does not exist")
}

func TestCartService_CreateInsufficientRemaining(t *testing.T) {
	snaps := map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 6, 1)}
	svc := newTestCartService(newFakeCartStore(), &fakeInventory{snaps: snaps}, newFakeReservedStore())

	_, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 4}},
	})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "there are only 3 remaining tickets of type General Admission")

	snaps["tt-ga"] = gaSnapshot(10, 9, 0)
	_, err = svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 2}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "there is only one remaining ticket of type General Admission")
}

func TestCartService_CreateSoldOutRace(t *testing.T) {
	// The repository re-validates under row locks; its ErrSoldOut surfaces as
	// a validation failure, not a 500.
	carts := newFakeCartStore()
	carts.createErr = fmt.Errorf("%w: General Admission", repository.ErrSoldOut)
	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}}
	svc := newTestCartService(carts, inv, newFakeReservedStore())

	_, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID: "ev-1",
		Tickets: []model.CartLine{{TicketTypeID: "tt-ga", Quantity: 1}},
	})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons[0], "General Admission")
}

func TestCartService_CreateWithReservedTickets(t *testing.T) {
	reserved := newFakeReservedStore()
	now := time.Now().UTC()
	reserved.tickets["rt-1"] = &model.ReservedTicket{
		ID: "rt-1", TicketTypeID: "tt-ga", EventID: "ev-1",
		TicketTypeName: "General Admission", Price: decimal.NewFromInt(25),
		Email: "holder@example.com", UserID: "user-1",
		ExpirationDate: now.Add(time.Hour),
	}
	reserved.tickets["rt-other"] = &model.ReservedTicket{
		ID: "rt-other", TicketTypeID: "tt-ga", EventID: "ev-1",
		Email: "someone@example.com", UserID: "user-2",
		ExpirationDate: now.Add(time.Hour),
	}

	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}}
	svc := newTestCartService(newFakeCartStore(), inv, reserved)

	cart, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID:           "ev-1",
		ReservedTicketIDs: []string{"rt-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rt-1"}, cart.ReservedTicketIDs)

	_, err = svc.Create(context.Background(), "user-1", &model.CreateCartRequest{
		EventID:           "ev-1",
		ReservedTicketIDs: []string{"rt-other"},
	})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "reserved ticket rt-other is not reserved for you")
}

func TestCartService_TotalsIncludeClaimedReservations(t *testing.T) {
	reserved := newFakeReservedStore()
	now := time.Now().UTC()
	reserved.tickets["rt-vip"] = &model.ReservedTicket{
		ID: "rt-vip", TicketTypeID: "tt-vip", EventID: "ev-1",
		TicketTypeName: "VIP", Price: decimal.NewFromInt(50),
		Email: "holder@example.com", UserID: "user-1",
		ExpirationDate: now.Add(time.Hour),
	}
	inv := &fakeInventory{snaps: map[string]*model.InventorySnapshot{"tt-ga": gaSnapshot(10, 0, 0)}}
	svc := newTestCartService(newFakeCartStore(), inv, reserved)

	cart := &model.Cart{
		UserID:            "user-1",
		EventID:           "ev-1",
		Items:             []model.CartItem{{TicketTypeID: "tt-ga", UnitPrice: decimal.NewFromInt(25), Quantity: 2}},
		ReservedTicketIDs: []string{"rt-vip"},
	}

	// $50 + 2 x $25; the reservation is part of what checkout charges.
	totals, err := svc.Totals(context.Background(), cart)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), totals.Subtotal)
	assert.Equal(t, int64(725), totals.Tax)
	assert.Equal(t, int64(351), totals.Fees)
	assert.Equal(t, int64(11076), totals.Total())
}

func TestCartService_CreateEmptyCart(t *testing.T) {
	svc := newTestCartService(newFakeCartStore(), &fakeInventory{snaps: map[string]*model.InventorySnapshot{}}, newFakeReservedStore())

	_, err := svc.Create(context.Background(), "user-1", &model.CreateCartRequest{EventID: "ev-1"})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "cart must contain at least one ticket")
}
