package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransferRepository handles persistence for ticket transfers and their
// attached tickets.
type TransferRepository struct {
	db *pgxpool.Pool
}

// NewTransferRepository constructs a TransferRepository.
func NewTransferRepository(db *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{db: db}
}

// PurchasedByIDs returns the purchased tickets with the given ids; missing ids
// are absent from the result.
func (r *TransferRepository) PurchasedByIDs(ctx context.Context, ids []string) ([]model.PurchasedTicket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, ticket_type_id, user_id, COALESCE(order_id::text, ''),
		        COALESCE(reserved_ticket_id::text, ''), created_at
		   FROM purchased_tickets
		  WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchased tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.PurchasedTicket
	for rows.Next() {
		var t model.PurchasedTicket
		if err := rows.Scan(&t.ID, &t.TicketTypeID, &t.UserID, &t.OrderID,
			&t.ReservedTicketID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchased ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Create persists a pending transfer with its attached tickets atomically.
func (r *TransferRepository) Create(ctx context.Context, t *model.TicketTransfer) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO ticket_transfers (id, sender_user_id, recipient_email, completed, created_at)
		 VALUES ($1, $2, $3, FALSE, $4)`,
		t.ID, t.SenderUserID, t.RecipientEmail, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	for _, item := range t.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO ticket_transfer_items (transfer_id, ticket_kind, ticket_id)
			 VALUES ($1, $2, $3)`,
			t.ID, string(item.Kind), item.TicketID,
		)
		if err != nil {
			return fmt.Errorf("insert transfer item: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a transfer with its items, or ErrNotFound.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*model.TicketTransfer, error) {
	var t model.TicketTransfer
	err := r.db.QueryRow(ctx,
		`SELECT id, sender_user_id, recipient_email, COALESCE(recipient_user_id::text, ''),
		        completed, created_at, completed_at
		   FROM ticket_transfers WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.SenderUserID, &t.RecipientEmail, &t.RecipientUserID,
		&t.Completed, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT ticket_kind, ticket_id FROM ticket_transfer_items WHERE transfer_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfer items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.TransferItem
		var kind string
		if err := rows.Scan(&kind, &item.TicketID); err != nil {
			return nil, fmt.Errorf("scan transfer item: %w", err)
		}
		item.Kind = model.TicketKind(kind)
		t.Items = append(t.Items, item)
	}
	return &t, rows.Err()
}

// Complete reassigns every attached ticket to the recipient and marks the
// transfer completed, in one transaction. The transfer row is locked first;
// if it already completed the whole call is a no-op surfaced as
// ErrTransferCompleted. This is the only write path that changes ticket
// ownership outside of refund deletion.
func (r *TransferRepository) Complete(ctx context.Context, transferID, recipientUserID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var completed bool
	err = tx.QueryRow(ctx,
		`SELECT completed FROM ticket_transfers WHERE id = $1 FOR UPDATE`, transferID,
	).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
		}
		return err
	}
	if completed {
		err = ErrTransferCompleted
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE purchased_tickets
		    SET user_id = $2
		  WHERE id IN (SELECT ticket_id FROM ticket_transfer_items
		                WHERE transfer_id = $1 AND ticket_kind = 'purchased')`,
		transferID, recipientUserID,
	)
	if err != nil {
		return fmt.Errorf("reassign purchased tickets: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE reserved_tickets
		    SET user_id = $2
		  WHERE id IN (SELECT ticket_id FROM ticket_transfer_items
		                WHERE transfer_id = $1 AND ticket_kind = 'reserved')`,
		transferID, recipientUserID,
	)
	if err != nil {
		return fmt.Errorf("reassign reserved tickets: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE ticket_transfers
		    SET completed = TRUE, recipient_user_id = $2, completed_at = now()
		  WHERE id = $1`,
		transferID, recipientUserID,
	)
	if err != nil {
		return fmt.Errorf("mark transfer completed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes a pending transfer; completed transfers are immutable.
func (r *TransferRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM ticket_transfers WHERE id = $1 AND completed = FALSE`, id,
	)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ticket_transfers WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check transfer: %w", err)
		}
		if exists {
			return ErrTransferCompleted
		}
		return ErrNotFound
	}
	return nil
}
