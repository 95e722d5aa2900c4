package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/monitoring"
	"github.com/emberfield/boxoffice/internal/repository"
)

// CartStore is the persistence surface the cart service needs.
type CartStore interface {
	ExpireActiveCarts(ctx context.Context, userID string) (int64, error)
	Create(ctx context.Context, cart *model.Cart) error
	ActiveCart(ctx context.Context, userID string) (*model.Cart, error)
	GetByID(ctx context.Context, id string) (*model.Cart, error)
}

// InventoryReader serves fresh inventory snapshots.
type InventoryReader interface {
	Snapshot(ctx context.Context, ticketTypeID string) (*model.InventorySnapshot, error)
}

// CartService validates and creates carts. A user holds at most one active
// cart; opening a new one expires the rest first.
type CartService struct {
	carts      CartStore
	inventory  InventoryReader
	reserved   ReservedReader
	pricer     Pricer
	ttl        time.Duration
	maxPerSale int
}

// NewCartService constructs a CartService.
func NewCartService(carts CartStore, inventory InventoryReader, reserved ReservedReader, pricer Pricer, ttl time.Duration, maxPerSale int) *CartService {
	return &CartService{
		carts:      carts,
		inventory:  inventory,
		reserved:   reserved,
		pricer:     pricer,
		ttl:        ttl,
		maxPerSale: maxPerSale,
	}
}

// Create expires the user's other active carts, validates the submission
// against every business rule at once, and persists the new cart. Expiry runs
// first so the user's own holds never count against the availability they see;
// replacing a cart that holds the last unit must succeed. Inventory is
// re-checked under row locks inside the repository, so passing validation here
// does not guarantee the insert succeeds under contention.
func (s *CartService) Create(ctx context.Context, userID string, req *model.CreateCartRequest) (*model.Cart, error) {
	now := time.Now().UTC()

	if _, err := s.carts.ExpireActiveCarts(ctx, userID); err != nil {
		return nil, err
	}

	var reasons []string

	if len(req.Tickets) == 0 && len(req.ReservedTicketIDs) == 0 {
		reasons = append(reasons, "cart must contain at least one ticket")
	}

	total := 0
	seen := make(map[string]bool, len(req.Tickets))
	for _, line := range req.Tickets {
		if line.Quantity < 1 {
			reasons = append(reasons, fmt.Sprintf("quantity for ticket type %s must be at least 1", line.TicketTypeID))
			continue
		}
		if seen[line.TicketTypeID] {
			reasons = append(reasons, fmt.Sprintf("ticket type %s appears more than once", line.TicketTypeID))
			continue
		}
		seen[line.TicketTypeID] = true
		total += line.Quantity
	}
	if total > s.maxPerSale {
		reasons = append(reasons, fmt.Sprintf("you can only purchase up to %d tickets at a time", s.maxPerSale))
	}

	items := make([]model.CartItem, 0, len(req.Tickets))
	for _, line := range req.Tickets {
		if line.Quantity < 1 || !seen[line.TicketTypeID] {
			continue
		}
		snap, err := s.inventory.Snapshot(ctx, line.TicketTypeID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				reasons = append(reasons, fmt.Sprintf("ticket type %s does not exist", line.TicketTypeID))
				continue
			}
			return nil, err
		}
		if snap.EventID != req.EventID {
			reasons = append(reasons, fmt.Sprintf("ticket type %s does not belong to this event", snap.Name))
			continue
		}
		if !snap.IsAvailable(now) {
			reasons = append(reasons, fmt.Sprintf("tickets of type %s are not currently on sale", snap.Name))
			continue
		}
		if !snap.HasAvailable(line.Quantity, now) {
			if remaining := snap.Remaining(); remaining == 1 {
				reasons = append(reasons, fmt.Sprintf("there is only one remaining ticket of type %s", snap.Name))
			} else {
				reasons = append(reasons, fmt.Sprintf("there are only %d remaining tickets of type %s", remaining, snap.Name))
			}
			continue
		}
		items = append(items, model.CartItem{
			TicketTypeID:   line.TicketTypeID,
			TicketTypeName: snap.Name,
			UnitPrice:      snap.Price,
			Quantity:       line.Quantity,
		})
	}

	if len(req.ReservedTicketIDs) > 0 {
		tickets, err := s.reserved.GetByIDs(ctx, req.ReservedTicketIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*model.ReservedTicket, len(tickets))
		for i := range tickets {
			byID[tickets[i].ID] = &tickets[i]
		}
		for _, id := range req.ReservedTicketIDs {
			t, ok := byID[id]
			if !ok {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s does not exist", id))
				continue
			}
			if t.UserID != userID {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s is not reserved for you", id))
				continue
			}
			if t.EventID != req.EventID {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s does not belong to this event", id))
				continue
			}
			if !t.CanBePurchased(now) {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s is no longer claimable", id))
			}
		}
	}

	if len(reasons) > 0 {
		monitoring.TrackCartOperation("rejected")
		return nil, &model.ValidationError{Reasons: reasons}
	}

	cart := &model.Cart{
		UserID:            userID,
		EventID:           req.EventID,
		ExpirationDate:    now.Add(s.ttl),
		Items:             items,
		ReservedTicketIDs: req.ReservedTicketIDs,
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		if errors.Is(err, repository.ErrSoldOut) {
			monitoring.TrackCartOperation("sold_out")
			return nil, &model.ValidationError{Reasons: []string{err.Error()}}
		}
		monitoring.TrackCartOperation("error")
		return nil, err
	}

	monitoring.TrackCartOperation("created")
	return cart, nil
}

// Active returns the user's current active cart, or repository.ErrNotFound.
func (s *CartService) Active(ctx context.Context, userID string) (*model.Cart, error) {
	return s.carts.ActiveCart(ctx, userID)
}

// Totals computes the financial breakdown for a cart, including the claimed
// reserved tickets, so the cart view matches what checkout will charge.
func (s *CartService) Totals(ctx context.Context, cart *model.Cart) (model.CartTotals, error) {
	var reserved []model.ReservedTicket
	if len(cart.ReservedTicketIDs) > 0 {
		var err error
		reserved, err = s.reserved.GetByIDs(ctx, cart.ReservedTicketIDs)
		if err != nil {
			return model.CartTotals{}, err
		}
	}
	return s.pricer.Totals(subtotalCents(cart, reserved)), nil
}
