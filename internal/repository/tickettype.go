package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TicketTypeRepository handles persistence and inventory reads for ticket
// types. Inventory is always computed fresh from purchased tickets and
// non-expired order-less carts; no counters are cached.
type TicketTypeRepository struct {
	db *pgxpool.Pool
}

// NewTicketTypeRepository constructs a TicketTypeRepository.
func NewTicketTypeRepository(db *pgxpool.Pool) *TicketTypeRepository {
	return &TicketTypeRepository{db: db}
}

// Create inserts a new ticket type.
func (r *TicketTypeRepository) Create(ctx context.Context, tt *model.TicketType) error {
	tt.ID = uuid.New().String()
	_, err := r.db.Exec(ctx,
		`INSERT INTO ticket_types
		   (id, event_id, name, price, quantity, sale_start, sale_end, active, transferable, addon)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tt.ID, tt.EventID, tt.Name, tt.Price, tt.Quantity,
		tt.SaleStart, tt.SaleEnd, tt.Active, tt.Transferable, tt.Addon,
	)
	if err != nil {
		return fmt.Errorf("insert ticket type: %w", err)
	}
	return nil
}

// Update saves staff edits. The price is immutable once any ticket has been
// sold, checked under a row lock so a concurrent first sale cannot slip past.
func (r *TicketTypeRepository) Update(ctx context.Context, tt *model.TicketType) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var currentPrice decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT price FROM ticket_types WHERE id = $1 FOR UPDATE`, tt.ID,
	).Scan(&currentPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock ticket type: %w", err)
	}

	if !currentPrice.Equal(tt.Price) {
		var sold bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM purchased_tickets WHERE ticket_type_id = $1)`, tt.ID,
		).Scan(&sold)
		if err != nil {
			return fmt.Errorf("check sold tickets: %w", err)
		}
		if sold {
			err = ErrPriceLocked
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE ticket_types
		    SET name = $2, price = $3, quantity = $4, sale_start = $5, sale_end = $6,
		        active = $7, transferable = $8, addon = $9
		  WHERE id = $1`,
		tt.ID, tt.Name, tt.Price, tt.Quantity, tt.SaleStart, tt.SaleEnd,
		tt.Active, tt.Transferable, tt.Addon,
	)
	if err != nil {
		return fmt.Errorf("update ticket type: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a single ticket type or ErrNotFound.
func (r *TicketTypeRepository) GetByID(ctx context.Context, id string) (*model.TicketType, error) {
	var tt model.TicketType
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, name, price, quantity, sale_start, sale_end,
		        active, transferable, addon, created_at
		   FROM ticket_types WHERE id = $1`, id,
	).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.Quantity,
		&tt.SaleStart, &tt.SaleEnd, &tt.Active, &tt.Transferable, &tt.Addon, &tt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	return &tt, nil
}

// Snapshot returns a fresh inventory view of one ticket type.
func (r *TicketTypeRepository) Snapshot(ctx context.Context, id string) (*model.InventorySnapshot, error) {
	tt, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return fetchCounts(ctx, r.db, tt)
}

// ListByEvent returns inventory snapshots for every ticket type of an event.
func (r *TicketTypeRepository) ListByEvent(ctx context.Context, eventID string) ([]model.InventorySnapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, price, quantity, sale_start, sale_end,
		        active, transferable, addon, created_at
		   FROM ticket_types WHERE event_id = $1 ORDER BY created_at ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	var types []model.TicketType
	for rows.Next() {
		var tt model.TicketType
		if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.Quantity,
			&tt.SaleStart, &tt.SaleEnd, &tt.Active, &tt.Transferable, &tt.Addon, &tt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snapshots := make([]model.InventorySnapshot, 0, len(types))
	for i := range types {
		snap, err := fetchCounts(ctx, r.db, &types[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

// lockTicketType acquires a row-level exclusive lock on the ticket type and
// returns it. Concurrent cart creations and checkout reconciliations for the
// same type serialize here.
func lockTicketType(ctx context.Context, q querier, id string) (*model.TicketType, error) {
	var tt model.TicketType
	err := q.QueryRow(ctx,
		`SELECT id, event_id, name, price, quantity, sale_start, sale_end,
		        active, transferable, addon, created_at
		   FROM ticket_types WHERE id = $1 FOR UPDATE`, id,
	).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Price, &tt.Quantity,
		&tt.SaleStart, &tt.SaleEnd, &tt.Active, &tt.Transferable, &tt.Addon, &tt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock ticket type: %w", err)
	}
	return &tt, nil
}

// fetchCounts computes the live inventory counters for a ticket type: sold
// units, and units held in carts that are neither expired nor completed.
func fetchCounts(ctx context.Context, q querier, tt *model.TicketType) (*model.InventorySnapshot, error) {
	snap := &model.InventorySnapshot{TicketType: *tt}
	err := q.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM purchased_tickets pt WHERE pt.ticket_type_id = $1),
		   (SELECT COALESCE(SUM(ci.quantity), 0)
		      FROM cart_items ci
		      JOIN carts c ON c.id = ci.cart_id
		     WHERE ci.ticket_type_id = $1
		       AND c.expiration_date > now()
		       AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.cart_id = c.id))`,
		tt.ID,
	).Scan(&snap.PurchasedCount, &snap.InCartQuantity)
	if err != nil {
		return nil, fmt.Errorf("count inventory: %w", err)
	}
	return snap, nil
}
