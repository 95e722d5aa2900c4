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

// CartRepository handles persistence for carts and cart items.
type CartRepository struct {
	db *pgxpool.Pool
}

// NewCartRepository constructs a CartRepository.
func NewCartRepository(db *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: db}
}

// ExpireActiveCarts expires every active cart of the user by backdating its
// expiration, immediately releasing the inventory those carts were holding.
// Returns the number of carts expired.
func (r *CartRepository) ExpireActiveCarts(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE carts
		    SET expiration_date = now() - interval '1 second'
		  WHERE user_id = $1
		    AND expiration_date > now()
		    AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = carts.id)`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("expire carts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Create persists a cart with its items and associates the requested reserved
// tickets, all in one transaction.
//
// Inventory is re-validated under SELECT ... FOR UPDATE locks on the ticket
// type rows immediately before the insert: the service layer's availability
// check runs unlocked, so two concurrent requests can both pass it for the
// last unit. The lock serializes them and the second sees ErrSoldOut instead
// of overselling.
func (r *CartRepository) Create(ctx context.Context, cart *model.Cart) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock in a stable order so concurrent multi-line carts cannot deadlock.
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.TicketTypeID)
	}
	sort.Strings(ids)

	quantities := make(map[string]int, len(cart.Items))
	for _, item := range cart.Items {
		quantities[item.TicketTypeID] = item.Quantity
	}

	for _, id := range ids {
		var tt *model.TicketType
		tt, err = lockTicketType(ctx, tx, id)
		if err != nil {
			return err
		}
		var snap *model.InventorySnapshot
		snap, err = fetchCounts(ctx, tx, tt)
		if err != nil {
			return err
		}
		if snap.Quantity != 0 && snap.Remaining() < quantities[id] {
			err = fmt.Errorf("%w: %s", ErrSoldOut, tt.Name)
			return err
		}
	}

	cart.ID = uuid.New().String()
	cart.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO carts (id, user_id, event_id, expiration_date, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cart.ID, cart.UserID, cart.EventID, cart.ExpirationDate, cart.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}

	for i := range cart.Items {
		cart.Items[i].ID = uuid.New().String()
		cart.Items[i].CartID = cart.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO cart_items (id, cart_id, ticket_type_id, quantity)
			 VALUES ($1, $2, $3, $4)`,
			cart.Items[i].ID, cart.ID, cart.Items[i].TicketTypeID, cart.Items[i].Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	if len(cart.ReservedTicketIDs) > 0 {
		// Marks the reservations pending-purchase; conversion happens at
		// checkout reconciliation.
		_, err = tx.Exec(ctx,
			`UPDATE reserved_tickets SET cart_id = $1 WHERE id = ANY($2)`,
			cart.ID, cart.ReservedTicketIDs,
		)
		if err != nil {
			return fmt.Errorf("attach reserved tickets: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ActiveCart returns the user's single active cart, or ErrNotFound.
func (r *CartRepository) ActiveCart(ctx context.Context, userID string) (*model.Cart, error) {
	return r.loadCart(ctx,
		`SELECT c.id, c.user_id, c.event_id, c.expiration_date,
		        COALESCE(c.provider_session_id, ''), c.created_at,
		        EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = c.id)
		   FROM carts c
		  WHERE c.user_id = $1
		    AND c.expiration_date > now()
		    AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = c.id)
		  ORDER BY c.created_at DESC
		  LIMIT 1`,
		userID,
	)
}

// GetByID returns a cart with its items, or ErrNotFound.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*model.Cart, error) {
	return r.loadCart(ctx,
		`SELECT c.id, c.user_id, c.event_id, c.expiration_date,
		        COALESCE(c.provider_session_id, ''), c.created_at,
		        EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = c.id)
		   FROM carts c
		  WHERE c.id = $1`,
		id,
	)
}

// GetBySessionID resolves a cart from its payment-provider session id.
func (r *CartRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Cart, error) {
	return r.loadCart(ctx,
		`SELECT c.id, c.user_id, c.event_id, c.expiration_date,
		        COALESCE(c.provider_session_id, ''), c.created_at,
		        EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = c.id)
		   FROM carts c
		  WHERE c.provider_session_id = $1`,
		sessionID,
	)
}

// SetProviderSession records the checkout session created for the cart.
func (r *CartRepository) SetProviderSession(ctx context.Context, cartID, sessionID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE carts SET provider_session_id = $2 WHERE id = $1`,
		cartID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set provider session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CartRepository) loadCart(ctx context.Context, query string, arg any) (*model.Cart, error) {
	var c model.Cart
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.UserID, &c.EventID, &c.ExpirationDate,
		&c.ProviderSessionID, &c.CreatedAt, &c.HasOrder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.ticket_type_id, tt.name, tt.price, ci.quantity
		   FROM cart_items ci
		   JOIN ticket_types tt ON tt.id = ci.ticket_type_id
		  WHERE ci.cart_id = $1
		  ORDER BY tt.name ASC`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.TicketTypeID,
			&item.TicketTypeName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reservedRows, err := r.db.Query(ctx,
		`SELECT id FROM reserved_tickets WHERE cart_id = $1`, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cart reserved tickets: %w", err)
	}
	defer reservedRows.Close()

	for reservedRows.Next() {
		var id string
		if err := reservedRows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reserved ticket id: %w", err)
		}
		c.ReservedTicketIDs = append(c.ReservedTicketIDs, id)
	}
	return &c, reservedRows.Err()
}
