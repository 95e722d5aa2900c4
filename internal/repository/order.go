package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository handles persistence for orders and purchased tickets.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateFromCart converts a cart into an order plus one purchased ticket per
// unit, in a single transaction. Cart item quantities are expanded and the
// cart's pending reserved tickets are converted alongside.
//
// Exactly-once: the in-transaction existence check handles sequential webhook
// replays, and the unique constraint on orders.provider_session_id closes the
// race between two concurrent deliveries; both paths surface
// ErrDuplicateOrder so the caller can treat the replay as a no-op.
//
// The cart's expiration is deliberately not checked: a payment that completed
// late still reconciles.
func (r *OrderRepository) CreateFromCart(ctx context.Context, order *model.Order, cart *model.Cart) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serialize with concurrent cart creations on the same ticket types so
	// their remaining-count reads stay consistent with this issuance.
	typeIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		typeIDs = append(typeIDs, item.TicketTypeID)
	}
	sort.Strings(typeIDs)
	for _, id := range typeIDs {
		if _, err = lockTicketType(ctx, tx, id); err != nil {
			return err
		}
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE provider_session_id = $1)`,
		order.ProviderSessionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing order: %w", err)
	}
	if exists {
		err = ErrDuplicateOrder
		return err
	}

	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO orders
		   (id, user_id, event_id, cart_id, provider_session_id,
		    amount_subtotal, amount_tax, amount_fees, amount_total,
		    quantity, refunded, ticket_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)`,
		order.ID, order.UserID, order.EventID, order.CartID, order.ProviderSessionID,
		order.AmountSubtotal, order.AmountTax, order.AmountFees, order.AmountTotal,
		order.Quantity, order.TicketData, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateOrder
			return err
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range cart.Items {
		for i := 0; i < item.Quantity; i++ {
			_, err = tx.Exec(ctx,
				`INSERT INTO purchased_tickets (id, ticket_type_id, user_id, order_id)
				 VALUES ($1, $2, $3, $4)`,
				uuid.New().String(), item.TicketTypeID, order.UserID, order.ID,
			)
			if err != nil {
				return fmt.Errorf("insert purchased ticket: %w", err)
			}
		}
	}

	// Convert the cart's pending reservations. ON CONFLICT keeps a
	// reservation that somehow already converted from double-issuing.
	reservedRows, err := tx.Query(ctx,
		`SELECT id, ticket_type_id FROM reserved_tickets WHERE cart_id = $1 FOR UPDATE`,
		cart.ID,
	)
	if err != nil {
		return fmt.Errorf("lock reserved tickets: %w", err)
	}
	type reservedRef struct{ id, ticketTypeID string }
	var reserved []reservedRef
	for reservedRows.Next() {
		var ref reservedRef
		if err = reservedRows.Scan(&ref.id, &ref.ticketTypeID); err != nil {
			reservedRows.Close()
			return fmt.Errorf("scan reserved ticket: %w", err)
		}
		reserved = append(reserved, ref)
	}
	reservedRows.Close()
	if err = reservedRows.Err(); err != nil {
		return err
	}

	for _, ref := range reserved {
		_, err = tx.Exec(ctx,
			`INSERT INTO purchased_tickets (id, ticket_type_id, user_id, order_id, reserved_ticket_id)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (reserved_ticket_id) DO NOTHING`,
			uuid.New().String(), ref.ticketTypeID, order.UserID, order.ID, ref.id,
		)
		if err != nil {
			return fmt.Errorf("convert reserved ticket: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a single order or ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	return r.scanOrder(r.db.QueryRow(ctx, orderSelect+` WHERE id = $1`, id))
}

// GetBySessionID returns the order for a provider session id, or ErrNotFound.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	return r.scanOrder(r.db.QueryRow(ctx, orderSelect+` WHERE provider_session_id = $1`, sessionID))
}

const orderSelect = `
	SELECT id, user_id, event_id, cart_id, provider_session_id,
	       amount_subtotal, amount_tax, amount_fees, amount_total,
	       quantity, refunded, COALESCE(ticket_data, '{}'), created_at
	  FROM orders`

func (r *OrderRepository) scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.EventID, &o.CartID, &o.ProviderSessionID,
		&o.AmountSubtotal, &o.AmountTax, &o.AmountFees, &o.AmountTotal,
		&o.Quantity, &o.Refunded, &o.TicketData, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// TicketsByOrder returns every purchased ticket issued by the order.
func (r *OrderRepository) TicketsByOrder(ctx context.Context, orderID string) ([]model.PurchasedTicket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, ticket_type_id, user_id, COALESCE(order_id::text, ''),
		        COALESCE(reserved_ticket_id::text, ''), created_at
		   FROM purchased_tickets
		  WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order tickets: %w", err)
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

// MarkRefunded voids the order: deletes its purchased tickets and flips the
// refunded flag, in one transaction. The provider refund must already have
// succeeded. Ownership is re-checked under the ticket row locks; a transfer
// that completed after the caller's refundability check surfaces as
// ErrTicketTransferred and nothing is voided.
func (r *OrderRepository) MarkRefunded(ctx context.Context, orderID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ownerID string
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM orders WHERE id = $1 FOR UPDATE`, orderID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return err
		}
		return fmt.Errorf("lock order: %w", err)
	}

	// Locking the ticket rows serializes with transfer completion; the owner
	// re-read sees any reassignment that committed first.
	rows, err := tx.Query(ctx,
		`SELECT user_id FROM purchased_tickets WHERE order_id = $1 FOR UPDATE`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("lock purchased tickets: %w", err)
	}
	var transferred bool
	for rows.Next() {
		var holderID string
		if err = rows.Scan(&holderID); err != nil {
			rows.Close()
			return fmt.Errorf("scan purchased ticket: %w", err)
		}
		if holderID != ownerID {
			transferred = true
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}
	if transferred {
		err = ErrTicketTransferred
		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM purchased_tickets WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete purchased tickets: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET refunded = TRUE WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("mark order refunded: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
