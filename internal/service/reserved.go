package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/google/uuid"
)

// ReservedStore is the persistence surface the reserved-ticket service needs.
type ReservedStore interface {
	CreateBatch(ctx context.Context, tickets []*model.ReservedTicket, convertIDs []string) error
	GetByID(ctx context.Context, id string) (*model.ReservedTicket, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.ReservedTicket, error)
	ListByUser(ctx context.Context, userID string) ([]model.ReservedTicket, error)
	Update(ctx context.Context, t *model.ReservedTicket) error
	Delete(ctx context.Context, id string) error
	Convert(ctx context.Context, t *model.ReservedTicket) error
}

// ReservedService manages staff-created reservations. A reservation for a
// free ticket type held by a known account converts straight into a purchased
// ticket; paid reservations wait for the person to claim them through
// checkout.
type ReservedService struct {
	reserved ReservedStore
	types    TicketTypeReader
	users    UserReader
	notifier notify.Notifier
}

// NewReservedService constructs a ReservedService.
func NewReservedService(reserved ReservedStore, types TicketTypeReader, users UserReader, notifier notify.Notifier) *ReservedService {
	return &ReservedService{reserved: reserved, types: types, users: users, notifier: notifier}
}

// Create reserves Count tickets of one type for the given email. The
// expiration defaults to the ticket type's sale end. Free reservations for an
// existing account are converted immediately; everyone gets one notification
// regardless of count.
func (s *ReservedService) Create(ctx context.Context, req *model.CreateReservedTicketRequest) ([]model.ReservedTicket, error) {
	var reasons []string

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) {
		reasons = append(reasons, "email is not valid")
	}
	if req.Count < 1 {
		reasons = append(reasons, "count must be at least 1")
	}

	tt, err := s.types.GetByID(ctx, req.TicketTypeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			reasons = append(reasons, fmt.Sprintf("ticket type %s does not exist", req.TicketTypeID))
			return nil, &model.ValidationError{Reasons: reasons}
		}
		return nil, err
	}

	expiration := tt.SaleEnd
	if req.ExpirationDate != nil {
		expiration = *req.ExpirationDate
	}
	if !expiration.After(time.Now().UTC()) {
		reasons = append(reasons, "expiration date must be in the future")
	}

	if len(reasons) > 0 {
		return nil, &model.ValidationError{Reasons: reasons}
	}

	userID := s.resolveUser(ctx, email)

	tickets := make([]*model.ReservedTicket, 0, req.Count)
	var convertIDs []string
	for i := 0; i < req.Count; i++ {
		t := &model.ReservedTicket{
			ID:             uuid.New().String(),
			TicketTypeID:   tt.ID,
			EventID:        tt.EventID,
			TicketTypeName: tt.Name,
			Price:          tt.Price,
			Email:          email,
			UserID:         userID,
			ExpirationDate: expiration,
			Note:           req.Note,
		}
		if userID != "" && tt.IsFree() {
			convertIDs = append(convertIDs, t.ID)
		}
		tickets = append(tickets, t)
	}

	if err := s.reserved.CreateBatch(ctx, tickets, convertIDs); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, email, notify.KindReservedTicket, map[string]any{
		"ticket_type": tt.Name,
		"count":       req.Count,
		"expires_at":  expiration,
	}); err != nil {
		log.Printf("notify: send %s to %s: %v", notify.KindReservedTicket, email, err)
	}

	out := make([]model.ReservedTicket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, *t)
	}
	return out, nil
}

// Get returns a single reservation.
func (s *ReservedService) Get(ctx context.Context, id string) (*model.ReservedTicket, error) {
	return s.reserved.GetByID(ctx, id)
}

// ListByUser returns the user's reservations.
func (s *ReservedService) ListByUser(ctx context.Context, userID string) ([]model.ReservedTicket, error) {
	return s.reserved.ListByUser(ctx, userID)
}

// Update edits a pending reservation. Changing the email re-resolves the
// holding account; if the edit makes a free reservation eligible it converts
// right after the save.
func (s *ReservedService) Update(ctx context.Context, id string, req *model.UpdateReservedTicketRequest) (*model.ReservedTicket, error) {
	t, err := s.reserved.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsPurchased {
		return nil, repository.ErrReservedFrozen
	}

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) {
		return nil, &model.ValidationError{Reasons: []string{"email is not valid"}}
	}
	t.Email = email
	t.UserID = s.resolveUser(ctx, email)
	t.Note = req.Note
	if req.ExpirationDate != nil {
		t.ExpirationDate = *req.ExpirationDate
	}

	if err := s.reserved.Update(ctx, t); err != nil {
		return nil, err
	}

	if t.UserID != "" && t.Price.IsZero() && t.CanBePurchased(time.Now().UTC()) {
		if err := s.reserved.Convert(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Delete removes a pending reservation.
func (s *ReservedService) Delete(ctx context.Context, id string) error {
	return s.reserved.Delete(ctx, id)
}

// resolveUser maps an email to an account id, empty when no account exists.
func (s *ReservedService) resolveUser(ctx context.Context, email string) string {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("resolve user %s: %v", email, err)
		}
		return ""
	}
	return user.ID
}
