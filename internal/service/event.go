package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/repository"
)

// EventStore is the persistence surface the event service needs.
type EventStore interface {
	Create(ctx context.Context, name string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// TicketTypeStore is the persistence surface for ticket type management.
type TicketTypeStore interface {
	Create(ctx context.Context, tt *model.TicketType) error
	Update(ctx context.Context, tt *model.TicketType) error
	GetByID(ctx context.Context, id string) (*model.TicketType, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.InventorySnapshot, error)
}

// EventService manages events and their ticket types.
type EventService struct {
	events EventStore
	types  TicketTypeStore
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, types TicketTypeStore) *EventService {
	return &EventService{events: events, types: types}
}

// CreateEvent validates and persists a new event.
func (s *EventService) CreateEvent(ctx context.Context, req *model.CreateEventRequest) (*model.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &model.ValidationError{Reasons: []string{"event name is required"}}
	}
	return s.events.Create(ctx, name)
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns one event.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.events.GetByID(ctx, id)
}

// CreateTicketType validates and persists a new ticket type for an event.
func (s *EventService) CreateTicketType(ctx context.Context, eventID string, req *model.CreateTicketTypeRequest) (*model.TicketType, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	if reasons := validateTicketType(req.Name, req.Quantity, req.Price.IsNegative(), req.SaleStart, req.SaleEnd); len(reasons) > 0 {
		return nil, &model.ValidationError{Reasons: reasons}
	}

	tt := &model.TicketType{
		EventID:      eventID,
		Name:         strings.TrimSpace(req.Name),
		Price:        req.Price,
		Quantity:     req.Quantity,
		SaleStart:    req.SaleStart,
		SaleEnd:      req.SaleEnd,
		Active:       req.Active,
		Transferable: req.Transferable,
		Addon:        req.Addon,
	}
	if err := s.types.Create(ctx, tt); err != nil {
		return nil, err
	}
	return tt, nil
}

// UpdateTicketType applies staff edits. A price change on a ticket type with
// sold tickets is rejected.
func (s *EventService) UpdateTicketType(ctx context.Context, id string, req *model.UpdateTicketTypeRequest) (*model.TicketType, error) {
	tt, err := s.types.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reasons := validateTicketType(req.Name, req.Quantity, req.Price.IsNegative(), req.SaleStart, req.SaleEnd); len(reasons) > 0 {
		return nil, &model.ValidationError{Reasons: reasons}
	}

	tt.Name = strings.TrimSpace(req.Name)
	tt.Price = req.Price
	tt.Quantity = req.Quantity
	tt.SaleStart = req.SaleStart
	tt.SaleEnd = req.SaleEnd
	tt.Active = req.Active
	tt.Transferable = req.Transferable
	tt.Addon = req.Addon

	if err := s.types.Update(ctx, tt); err != nil {
		if errors.Is(err, repository.ErrPriceLocked) {
			return nil, &model.ValidationError{Reasons: []string{"price cannot change after tickets have been sold"}}
		}
		return nil, err
	}
	return tt, nil
}

// ListTicketTypes returns inventory snapshots for an event's ticket types.
func (s *EventService) ListTicketTypes(ctx context.Context, eventID string) ([]model.InventorySnapshot, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.types.ListByEvent(ctx, eventID)
}

func validateTicketType(name string, quantity int, negativePrice bool, saleStart, saleEnd time.Time) []string {
	var reasons []string
	if strings.TrimSpace(name) == "" {
		reasons = append(reasons, "ticket type name is required")
	}
	if quantity < 0 {
		reasons = append(reasons, "quantity cannot be negative")
	}
	if negativePrice {
		reasons = append(reasons, "price cannot be negative")
	}
	if !saleEnd.After(saleStart) {
		reasons = append(reasons, "sale end must be after sale start")
	}
	return reasons
}
