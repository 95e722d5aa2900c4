package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/monitoring"
	"github.com/emberfield/boxoffice/internal/notify"
	"github.com/emberfield/boxoffice/internal/repository"
)

// TransferStore is the persistence surface the transfer service needs.
type TransferStore interface {
	PurchasedByIDs(ctx context.Context, ids []string) ([]model.PurchasedTicket, error)
	Create(ctx context.Context, t *model.TicketTransfer) error
	GetByID(ctx context.Context, id string) (*model.TicketTransfer, error)
	Complete(ctx context.Context, transferID, recipientUserID string) error
	Delete(ctx context.Context, id string) error
}

// TicketTypeReader resolves ticket types for transferability checks.
type TicketTypeReader interface {
	GetByID(ctx context.Context, id string) (*model.TicketType, error)
}

// TransferService moves tickets between accounts. Transfers are pending until
// the recipient completes them; the sender can delete a pending transfer but
// a completed one is immutable.
type TransferService struct {
	transfers TransferStore
	reserved  ReservedReader
	types     TicketTypeReader
	users     UserReader
	notifier  notify.Notifier
}

// NewTransferService constructs a TransferService.
func NewTransferService(transfers TransferStore, reserved ReservedReader, types TicketTypeReader, users UserReader, notifier notify.Notifier) *TransferService {
	return &TransferService{
		transfers: transfers,
		reserved:  reserved,
		types:     types,
		users:     users,
		notifier:  notifier,
	}
}

// Create opens a pending transfer of the sender's tickets to the recipient
// email. Every referenced ticket must exist, belong to the sender, and be of a
// transferable ticket type; reserved tickets must not have been purchased.
func (s *TransferService) Create(ctx context.Context, senderID string, req *model.CreateTransferRequest) (*model.TicketTransfer, error) {
	var reasons []string

	email := normalizeEmail(req.RecipientEmail)
	if !isValidEmail(email) {
		reasons = append(reasons, "recipient email is not valid")
	}
	if len(req.PurchasedTicketIDs) == 0 && len(req.ReservedTicketIDs) == 0 {
		reasons = append(reasons, "transfer must include at least one ticket")
	}

	items := make([]model.TransferItem, 0, len(req.PurchasedTicketIDs)+len(req.ReservedTicketIDs))

	if len(req.PurchasedTicketIDs) > 0 {
		tickets, err := s.transfers.PurchasedByIDs(ctx, req.PurchasedTicketIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*model.PurchasedTicket, len(tickets))
		for i := range tickets {
			byID[tickets[i].ID] = &tickets[i]
		}
		for _, id := range req.PurchasedTicketIDs {
			t, ok := byID[id]
			if !ok || t.UserID != senderID {
				reasons = append(reasons, fmt.Sprintf("ticket %s does not belong to you", id))
				continue
			}
			ok, err := s.transferable(ctx, t.TicketTypeID)
			if err != nil {
				return nil, err
			}
			if !ok {
				reasons = append(reasons, fmt.Sprintf("ticket %s is not transferable", id))
				continue
			}
			items = append(items, model.TransferItem{Kind: model.KindPurchased, TicketID: id})
		}
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
			if !ok || t.UserID != senderID {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s does not belong to you", id))
				continue
			}
			if t.IsPurchased {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s has already been purchased", id))
				continue
			}
			ok, err := s.transferable(ctx, t.TicketTypeID)
			if err != nil {
				return nil, err
			}
			if !ok {
				reasons = append(reasons, fmt.Sprintf("reserved ticket %s is not transferable", id))
				continue
			}
			items = append(items, model.TransferItem{Kind: model.KindReserved, TicketID: id})
		}
	}

	if len(reasons) > 0 {
		monitoring.TrackTransfer("rejected")
		return nil, &model.ValidationError{Reasons: reasons}
	}

	transfer := &model.TicketTransfer{
		SenderUserID:   senderID,
		RecipientEmail: email,
		Items:          items,
	}
	if err := s.transfers.Create(ctx, transfer); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, email, notify.KindTicketTransfer, map[string]any{
		"transfer_id":  transfer.ID,
		"ticket_count": len(items),
	}); err != nil {
		log.Printf("notify: send %s to %s: %v", notify.KindTicketTransfer, email, err)
	}

	monitoring.TrackTransfer("created")
	return transfer, nil
}

// Get returns a transfer visible to the given user: its sender or the account
// holding its recipient email.
func (s *TransferService) Get(ctx context.Context, userID, userEmail, transferID string) (*model.TicketTransfer, error) {
	transfer, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.SenderUserID != userID && !transfer.CompletableBy(userEmail) {
		return nil, ErrForbidden
	}
	return transfer, nil
}

// Complete accepts the transfer on behalf of the account holding the
// recipient email, reassigning every attached ticket. Completing an already
// completed transfer returns it unchanged.
func (s *TransferService) Complete(ctx context.Context, userID, transferID string) (*model.TicketTransfer, error) {
	transfer, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !transfer.CompletableBy(user.Email) {
		return nil, ErrForbidden
	}
	if transfer.Completed {
		return transfer, nil
	}

	if err := s.transfers.Complete(ctx, transferID, userID); err != nil {
		if errors.Is(err, repository.ErrTransferCompleted) {
			// Lost the race to another delivery of the same acceptance.
			return s.transfers.GetByID(ctx, transferID)
		}
		return nil, err
	}

	transfer.Completed = true
	transfer.RecipientUserID = userID
	now := time.Now().UTC()
	transfer.CompletedAt = &now

	monitoring.TrackTransfer("completed")
	return transfer, nil
}

// Delete cancels a pending transfer. Only the sender may delete, and only
// while the transfer is pending.
func (s *TransferService) Delete(ctx context.Context, userID, transferID string) error {
	transfer, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.SenderUserID != userID {
		return ErrForbidden
	}
	if !transfer.DeletableBy(userID) {
		return repository.ErrTransferCompleted
	}

	if err := s.transfers.Delete(ctx, transferID); err != nil {
		return err
	}
	monitoring.TrackTransfer("deleted")
	return nil
}

func (s *TransferService) transferable(ctx context.Context, ticketTypeID string) (bool, error) {
	tt, err := s.types.GetByID(ctx, ticketTypeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return tt.Transferable, nil
}
