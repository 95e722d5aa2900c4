package service

import (
	"context"
	"testing"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reservedFixture struct {
	svc      *ReservedService
	reserved *fakeReservedStore
	users    *fakeUserStore
	notifier *recordingNotifier
}

func newReservedFixture() *reservedFixture {
	reserved := newFakeReservedStore()
	users := newFakeUserStore(&model.User{ID: "holder", Email: "holder@example.com"})
	now := time.Now().UTC()
	types := &fakeTypeStore{types: map[string]*model.TicketType{
		"tt-free": {
			ID: "tt-free", EventID: "ev-1", Name: "Community Pass",
			Price: decimal.Zero, SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(24 * time.Hour),
		},
		"tt-paid": {
			ID: "tt-paid", EventID: "ev-1", Name: "VIP",
			Price: decimal.NewFromInt(50), SaleStart: now.Add(-time.Hour), SaleEnd: now.Add(24 * time.Hour),
		},
	}}
	notifier := &recordingNotifier{}

	return &reservedFixture{
		svc:      NewReservedService(reserved, types, users, notifier),
		reserved: reserved,
		users:    users,
		notifier: notifier,
	}
}

func TestReservedService_CreateFansOutCount(t *testing.T) {
	f := newReservedFixture()

	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-paid",
		Email:        "Holder@Example.com",
		Count:        3,
		Note:         "sponsor allocation",
	})
	require.NoError(t, err)

	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.Equal(t, "holder@example.com", ticket.Email)
		assert.Equal(t, "holder", ticket.UserID)
		assert.False(t, ticket.IsPurchased, "paid reservations wait for checkout")
		assert.Equal(t, "VIP", ticket.TicketTypeName)
	}

	// One notification for the whole batch.
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.KindReservedTicket, f.notifier.sent[0].Kind)
	assert.Equal(t, 3, f.notifier.sent[0].Data["count"])
}

func TestReservedService_CreateAutoConvertsFreeTickets(t *testing.T) {
	f := newReservedFixture()

	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-free",
		Email:        "holder@example.com",
		Count:        2,
	})
	require.NoError(t, err)

	for _, ticket := range tickets {
		assert.True(t, ticket.IsPurchased, "free reservation for a known account converts immediately")
	}
}

func TestReservedService_CreateNoAccountStaysPending(t *testing.T) {
	f := newReservedFixture()

	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-free",
		Email:        "stranger@example.com",
		Count:        1,
	})
	require.NoError(t, err)

	require.Len(t, tickets, 1)
	assert.Empty(t, tickets[0].UserID)
	assert.False(t, tickets[0].IsPurchased, "no account yet, nothing to convert to")
}

func TestReservedService_CreateDefaultsExpirationToSaleEnd(t *testing.T) {
	f := newReservedFixture()

	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-paid",
		Email:        "holder@example.com",
		Count:        1,
	})
	require.NoError(t, err)

	require.Len(t, tickets, 1)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), tickets[0].ExpirationDate, time.Minute)
}

func TestReservedService_CreateValidation(t *testing.T) {
	f := newReservedFixture()

	_, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-paid",
		Email:        "not-an-email",
		Count:        0,
	})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons, "email is not valid")
	assert.Contains(t, verr.Reasons, "count must be at least 1")
}

func TestReservedService_UpdateConvertsWhenEligible(t *testing.T) {
	f := newReservedFixture()

	// Reserved for a stranger; pending because there is no account to own it.
	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-free",
		Email:        "stranger@example.com",
		Count:        1,
	})
	require.NoError(t, err)

	// Re-pointing the reservation at a known account converts it on save.
	updated, err := f.svc.Update(context.Background(), tickets[0].ID, &model.UpdateReservedTicketRequest{
		Email: "holder@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "holder", updated.UserID)
	assert.True(t, updated.IsPurchased)
	assert.True(t, f.reserved.tickets[updated.ID].IsPurchased)
}

func TestReservedService_UpdateFrozenAfterPurchase(t *testing.T) {
	f := newReservedFixture()

	tickets, err := f.svc.Create(context.Background(), &model.CreateReservedTicketRequest{
		TicketTypeID: "tt-free",
		Email:        "holder@example.com",
		Count:        1,
	})
	require.NoError(t, err)
	require.True(t, tickets[0].IsPurchased)

	_, err = f.svc.Update(context.Background(), tickets[0].ID, &model.UpdateReservedTicketRequest{
		Email: "other@example.com",
	})
	assert.ErrorIs(t, err, repository.ErrReservedFrozen)

	err = f.svc.Delete(context.Background(), tickets[0].ID)
	assert.ErrorIs(t, err, repository.ErrReservedFrozen)
}
