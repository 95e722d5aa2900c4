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

// ReservedTicketRepository handles persistence for reserved tickets.
type ReservedTicketRepository struct {
	db *pgxpool.Pool
}

// NewReservedTicketRepository constructs a ReservedTicketRepository.
func NewReservedTicketRepository(db *pgxpool.Pool) *ReservedTicketRepository {
	return &ReservedTicketRepository{db: db}
}

const reservedSelect = `
	SELECT r.id, r.ticket_type_id, tt.event_id, tt.name, tt.price, r.email,
	       COALESCE(r.user_id::text, ''), COALESCE(r.cart_id::text, ''),
	       r.expiration_date, r.note, r.created_at,
	       EXISTS (SELECT 1 FROM purchased_tickets pt WHERE pt.reserved_ticket_id = r.id)
	  FROM reserved_tickets r
	  JOIN ticket_types tt ON tt.id = r.ticket_type_id`

// CreateBatch inserts a fan-out of reserved tickets and, for the ids listed in
// convertIDs, the purchased tickets of free auto-conversions, atomically.
func (r *ReservedTicketRepository) CreateBatch(ctx context.Context, tickets []*model.ReservedTicket, convertIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	byID := make(map[string]*model.ReservedTicket, len(tickets))
	for _, t := range tickets {
		t.CreatedAt = time.Now().UTC()
		var userID any
		if t.UserID != "" {
			userID = t.UserID
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO reserved_tickets (id, ticket_type_id, email, user_id, expiration_date, note, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.TicketTypeID, t.Email, userID, t.ExpirationDate, t.Note, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert reserved ticket: %w", err)
		}
		byID[t.ID] = t
	}

	for _, id := range convertIDs {
		t, ok := byID[id]
		if !ok || t.UserID == "" {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO purchased_tickets (id, ticket_type_id, user_id, reserved_ticket_id)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), t.TicketTypeID, t.UserID, t.ID,
		)
		if err != nil {
			return fmt.Errorf("auto-convert reserved ticket: %w", err)
		}
		t.IsPurchased = true
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a single reserved ticket or ErrNotFound.
func (r *ReservedTicketRepository) GetByID(ctx context.Context, id string) (*model.ReservedTicket, error) {
	return scanReserved(r.db.QueryRow(ctx, reservedSelect+` WHERE r.id = $1`, id))
}

// GetByIDs returns the reserved tickets with the given ids, in no particular
// order; missing ids are simply absent from the result.
func (r *ReservedTicketRepository) GetByIDs(ctx context.Context, ids []string) ([]model.ReservedTicket, error) {
	rows, err := r.db.Query(ctx, reservedSelect+` WHERE r.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list reserved tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.ReservedTicket
	for rows.Next() {
		t, err := scanReservedRows(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// ListByUser returns the user's reserved tickets.
func (r *ReservedTicketRepository) ListByUser(ctx context.Context, userID string) ([]model.ReservedTicket, error) {
	rows, err := r.db.Query(ctx, reservedSelect+` WHERE r.user_id = $1 ORDER BY r.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reserved tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.ReservedTicket
	for rows.Next() {
		t, err := scanReservedRows(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// Update saves edits to a pending reservation. The WHERE clause vetoes the
// write once a purchased ticket references the row, closing the race with a
// concurrent conversion.
func (r *ReservedTicketRepository) Update(ctx context.Context, t *model.ReservedTicket) error {
	var userID any
	if t.UserID != "" {
		userID = t.UserID
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE reserved_tickets
		    SET email = $2, user_id = $3, expiration_date = $4, note = $5
		  WHERE id = $1
		    AND NOT EXISTS (SELECT 1 FROM purchased_tickets pt WHERE pt.reserved_ticket_id = $1)`,
		t.ID, t.Email, userID, t.ExpirationDate, t.Note,
	)
	if err != nil {
		return fmt.Errorf("update reserved ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.frozenOrMissing(ctx, t.ID)
	}
	return nil
}

// Delete removes a pending reservation, refusing once it has been purchased.
func (r *ReservedTicketRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reserved_tickets
		  WHERE id = $1
		    AND NOT EXISTS (SELECT 1 FROM purchased_tickets pt WHERE pt.reserved_ticket_id = $1)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete reserved ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.frozenOrMissing(ctx, id)
	}
	return nil
}

// Convert records the purchase of a free reservation outside of checkout.
// The conflict target makes a concurrent conversion a no-op.
func (r *ReservedTicketRepository) Convert(ctx context.Context, t *model.ReservedTicket) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO purchased_tickets (id, ticket_type_id, user_id, reserved_ticket_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (reserved_ticket_id) DO NOTHING`,
		uuid.New().String(), t.TicketTypeID, t.UserID, t.ID,
	)
	if err != nil {
		return fmt.Errorf("convert reserved ticket: %w", err)
	}
	t.IsPurchased = true
	return nil
}

func (r *ReservedTicketRepository) frozenOrMissing(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reserved_tickets WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check reserved ticket: %w", err)
	}
	if exists {
		return ErrReservedFrozen
	}
	return ErrNotFound
}

func scanReserved(row pgx.Row) (*model.ReservedTicket, error) {
	var t model.ReservedTicket
	err := row.Scan(&t.ID, &t.TicketTypeID, &t.EventID, &t.TicketTypeName, &t.Price,
		&t.Email, &t.UserID, &t.CartID,
		&t.ExpirationDate, &t.Note, &t.CreatedAt, &t.IsPurchased)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reserved ticket: %w", err)
	}
	return &t, nil
}

func scanReservedRows(rows pgx.Rows) (*model.ReservedTicket, error) {
	var t model.ReservedTicket
	err := rows.Scan(&t.ID, &t.TicketTypeID, &t.EventID, &t.TicketTypeName, &t.Price,
		&t.Email, &t.UserID, &t.CartID,
		&t.ExpirationDate, &t.Note, &t.CreatedAt, &t.IsPurchased)
	if err != nil {
		return nil, fmt.Errorf("scan reserved ticket: %w", err)
	}
	return &t, nil
}
