package service

import (
	"context"
	"fmt"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/google/uuid"
)

// In-memory fakes for the store interfaces. They reproduce the repository
// contracts the services rely on (sentinel errors, duplicate detection,
// freeze-after-purchase) without a database.

type fakeInventory struct {
	snaps map[string]*model.InventorySnapshot
	// When set, in-cart holds are counted live from the cart store, the way
	// the real snapshot query does.
	carts *fakeCartStore
}

func (f *fakeInventory) Snapshot(_ context.Context, id string) (*model.InventorySnapshot, error) {
	snap, ok := f.snaps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *snap
	if f.carts != nil {
		now := time.Now().UTC()
		for _, c := range f.carts.carts {
			if c.Status(now) != model.CartActive {
				continue
			}
			for _, item := range c.Items {
				if item.TicketTypeID == id {
					out.InCartQuantity += item.Quantity
				}
			}
		}
	}
	return &out, nil
}

type fakeCartStore struct {
	carts     map[string]*model.Cart
	createErr error
	expired   int64
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[string]*model.Cart)}
}

func (f *fakeCartStore) ExpireActiveCarts(_ context.Context, userID string) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for _, c := range f.carts {
		if c.UserID == userID && c.Status(now) == model.CartActive {
			c.ExpirationDate = now.Add(-time.Second)
			n++
		}
	}
	f.expired += n
	return n, nil
}

func (f *fakeCartStore) Create(_ context.Context, cart *model.Cart) error {
	if f.createErr != nil {
		return f.createErr
	}
	cart.ID = uuid.New().String()
	cart.CreatedAt = time.Now().UTC()
	f.carts[cart.ID] = cart
	return nil
}

func (f *fakeCartStore) ActiveCart(_ context.Context, userID string) (*model.Cart, error) {
	now := time.Now().UTC()
	for _, c := range f.carts {
		if c.UserID == userID && c.Status(now) == model.CartActive {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCartStore) GetByID(_ context.Context, id string) (*model.Cart, error) {
	c, ok := f.carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCartStore) GetBySessionID(_ context.Context, sessionID string) (*model.Cart, error) {
	for _, c := range f.carts {
		if c.ProviderSessionID == sessionID {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCartStore) SetProviderSession(_ context.Context, cartID, sessionID string) error {
	c, ok := f.carts[cartID]
	if !ok {
		return repository.ErrNotFound
	}
	c.ProviderSessionID = sessionID
	return nil
}

type fakeReservedStore struct {
	tickets map[string]*model.ReservedTicket
}

func newFakeReservedStore() *fakeReservedStore {
	return &fakeReservedStore{tickets: make(map[string]*model.ReservedTicket)}
}

func (f *fakeReservedStore) CreateBatch(_ context.Context, tickets []*model.ReservedTicket, convertIDs []string) error {
	convert := make(map[string]bool, len(convertIDs))
	for _, id := range convertIDs {
		convert[id] = true
	}
	for _, t := range tickets {
		t.CreatedAt = time.Now().UTC()
		if convert[t.ID] && t.UserID != "" {
			t.IsPurchased = true
		}
		copied := *t
		f.tickets[t.ID] = &copied
	}
	return nil
}

func (f *fakeReservedStore) GetByID(_ context.Context, id string) (*model.ReservedTicket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (f *fakeReservedStore) GetByIDs(_ context.Context, ids []string) ([]model.ReservedTicket, error) {
	var out []model.ReservedTicket
	for _, id := range ids {
		if t, ok := f.tickets[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeReservedStore) ListByUser(_ context.Context, userID string) ([]model.ReservedTicket, error) {
	var out []model.ReservedTicket
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeReservedStore) Update(_ context.Context, t *model.ReservedTicket) error {
	existing, ok := f.tickets[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.IsPurchased {
		return repository.ErrReservedFrozen
	}
	copied := *t
	f.tickets[t.ID] = &copied
	return nil
}

func (f *fakeReservedStore) Delete(_ context.Context, id string) error {
	existing, ok := f.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.IsPurchased {
		return repository.ErrReservedFrozen
	}
	delete(f.tickets, id)
	return nil
}

func (f *fakeReservedStore) Convert(_ context.Context, t *model.ReservedTicket) error {
	if existing, ok := f.tickets[t.ID]; ok {
		existing.IsPurchased = true
	}
	t.IsPurchased = true
	return nil
}

type fakeUserStore struct {
	users map[string]*model.User
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) Upsert(_ context.Context, email, name string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			u.Name = name
			return u, nil
		}
	}
	u := &model.User{ID: uuid.New().String(), Email: email, Name: name, CreatedAt: time.Now().UTC()}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeOrderStore struct {
	orders   map[string]*model.Order
	tickets  map[string][]model.PurchasedTicket
	reserved *fakeReservedStore
	// Runs at the top of MarkRefunded, for interleaving a transfer between
	// the service's refundability check and the store's locked re-check.
	beforeMarkRefunded func()
}

func newFakeOrderStore(reserved *fakeReservedStore) *fakeOrderStore {
	return &fakeOrderStore{
		orders:   make(map[string]*model.Order),
		tickets:  make(map[string][]model.PurchasedTicket),
		reserved: reserved,
	}
}

func (f *fakeOrderStore) CreateFromCart(_ context.Context, order *model.Order, cart *model.Cart) error {
	for _, o := range f.orders {
		if o.ProviderSessionID == order.ProviderSessionID {
			return repository.ErrDuplicateOrder
		}
	}
	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()
	f.orders[order.ID] = order
	cart.HasOrder = true

	var tickets []model.PurchasedTicket
	for _, item := range cart.Items {
		for i := 0; i < item.Quantity; i++ {
			tickets = append(tickets, model.PurchasedTicket{
				ID:           fmt.Sprintf("pt-%s-%d", item.TicketTypeID, len(tickets)),
				TicketTypeID: item.TicketTypeID,
				UserID:       order.UserID,
				OrderID:      order.ID,
			})
		}
	}
	if f.reserved != nil {
		for _, id := range cart.ReservedTicketIDs {
			if t, ok := f.reserved.tickets[id]; ok && !t.IsPurchased {
				t.IsPurchased = true
				tickets = append(tickets, model.PurchasedTicket{
					ID:               "pt-reserved-" + id,
					TicketTypeID:     t.TicketTypeID,
					UserID:           order.UserID,
					OrderID:          order.ID,
					ReservedTicketID: id,
				})
			}
		}
	}
	f.tickets[order.ID] = tickets
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id string) (*model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetBySessionID(_ context.Context, sessionID string) (*model.Order, error) {
	for _, o := range f.orders {
		if o.ProviderSessionID == sessionID {
			return o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrderStore) TicketsByOrder(_ context.Context, orderID string) ([]model.PurchasedTicket, error) {
	return f.tickets[orderID], nil
}

func (f *fakeOrderStore) MarkRefunded(_ context.Context, orderID string) error {
	if f.beforeMarkRefunded != nil {
		f.beforeMarkRefunded()
	}
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, t := range f.tickets[orderID] {
		if t.UserID != o.UserID {
			return repository.ErrTicketTransferred
		}
	}
	o.Refunded = true
	delete(f.tickets, orderID)
	return nil
}

// setOwner reassigns one purchased ticket, simulating a completed transfer.
func (f *fakeOrderStore) setOwner(orderID, ticketID, newOwner string) {
	tickets := f.tickets[orderID]
	for i := range tickets {
		if tickets[i].ID == ticketID {
			tickets[i].UserID = newOwner
		}
	}
}

type fakeTransferStore struct {
	purchased map[string]*model.PurchasedTicket
	transfers map[string]*model.TicketTransfer
	reserved  *fakeReservedStore
}

func newFakeTransferStore(reserved *fakeReservedStore) *fakeTransferStore {
	return &fakeTransferStore{
		purchased: make(map[string]*model.PurchasedTicket),
		transfers: make(map[string]*model.TicketTransfer),
		reserved:  reserved,
	}
}

func (f *fakeTransferStore) PurchasedByIDs(_ context.Context, ids []string) ([]model.PurchasedTicket, error) {
	var out []model.PurchasedTicket
	for _, id := range ids {
		if t, ok := f.purchased[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTransferStore) Create(_ context.Context, t *model.TicketTransfer) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	copied := *t
	f.transfers[t.ID] = &copied
	return nil
}

func (f *fakeTransferStore) GetByID(_ context.Context, id string) (*model.TicketTransfer, error) {
	t, ok := f.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *t
	return &out, nil
}

func (f *fakeTransferStore) Complete(_ context.Context, transferID, recipientUserID string) error {
	t, ok := f.transfers[transferID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Completed {
		return repository.ErrTransferCompleted
	}
	for _, item := range t.Items {
		switch item.Kind {
		case model.KindPurchased:
			if pt, ok := f.purchased[item.TicketID]; ok {
				pt.UserID = recipientUserID
			}
		case model.KindReserved:
			if f.reserved != nil {
				if rt, ok := f.reserved.tickets[item.TicketID]; ok {
					rt.UserID = recipientUserID
				}
			}
		}
	}
	now := time.Now().UTC()
	t.Completed = true
	t.RecipientUserID = recipientUserID
	t.CompletedAt = &now
	return nil
}

func (f *fakeTransferStore) Delete(_ context.Context, id string) error {
	t, ok := f.transfers[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.Completed {
		return repository.ErrTransferCompleted
	}
	delete(f.transfers, id)
	return nil
}

type fakeTypeStore struct {
	types map[string]*model.TicketType
}

func (f *fakeTypeStore) GetByID(_ context.Context, id string) (*model.TicketType, error) {
	tt, ok := f.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return tt, nil
}

type recordingNotifier struct {
	sent []notify.Message
}

func (n *recordingNotifier) Send(_ context.Context, recipient string, kind notify.Kind, data map[string]any) error {
	n.sent = append(n.sent, notify.Message{Recipient: recipient, Kind: kind, Data: data})
	return nil
}
