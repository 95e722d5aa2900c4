// Package repository implements all database queries for the ticketing system.
// It uses pgx directly (no ORM) for transparency and performance. All
// multi-statement writes run inside transactions owned by this package, and
// the contended ticket_types rows are serialized with SELECT ... FOR UPDATE.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrSoldOut is returned when the lock-time re-validation finds less remaining
// inventory than a cart requests. The losing side of a concurrent checkout
// race sees this, not a constraint failure.
var ErrSoldOut = errors.New("sold out")

// ErrDuplicateOrder is returned when an order already exists for a payment
// session. Expected under at-least-once webhook delivery.
var ErrDuplicateOrder = errors.New("order already exists for session")

// ErrReservedFrozen is returned on update/delete of a reserved ticket that a
// purchased ticket already references.
var ErrReservedFrozen = errors.New("reserved ticket is frozen after purchase")

// ErrPriceLocked is returned when changing the price of a ticket type that has
// sold at least one ticket.
var ErrPriceLocked = errors.New("price is locked after first purchase")

// ErrTransferCompleted is returned when deleting a completed transfer, or by
// Complete when the transfer already completed (callers treat it as a no-op).
var ErrTransferCompleted = errors.New("transfer already completed")

// ErrTicketTransferred is returned by MarkRefunded when the locked re-check
// finds a ticket on the order that no longer belongs to the purchaser.
var ErrTicketTransferred = errors.New("ticket no longer belongs to purchaser")

// querier is the subset of pgxpool.Pool and pgx.Tx the read helpers need, so
// the same queries run pooled or inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, name string) (*model.Event, error) {
	event := &model.Event{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, name, created_at) VALUES ($1, $2, $3)`,
		event.ID, event.Name, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, created_at FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// UserRepository handles persistence for user accounts.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user by email or refreshes the name of an existing one.
func (r *UserRepository) Upsert(ctx context.Context, email, name string) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, email, name, created_at`,
		uuid.New().String(), email, name, time.Now().UTC(),
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// GetByEmail returns the user with the given (lowercased) email or ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUserRow(r.db.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE email = $1`, email,
	))
}

// GetByID returns a single user or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return scanUserRow(r.db.QueryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`, id,
	))
}

func scanUserRow(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
