package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateEventRequest is the payload for creating an event.
type CreateEventRequest struct {
	Name string `json:"name"`
}

// UpsertUserRequest is the payload for creating or refreshing an account.
type UpsertUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateTicketTypeRequest is the payload for adding a ticket type to an event.
type CreateTicketTypeRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	SaleStart    time.Time       `json:"sale_start"`
	SaleEnd      time.Time       `json:"sale_end"`
	Active       bool            `json:"active"`
	Transferable bool            `json:"transferable"`
	Addon        bool            `json:"addon"`
}

// UpdateTicketTypeRequest is the payload for editing a ticket type. Price
// changes are rejected once a ticket has been sold.
type UpdateTicketTypeRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	SaleStart    time.Time       `json:"sale_start"`
	SaleEnd      time.Time       `json:"sale_end"`
	Active       bool            `json:"active"`
	Transferable bool            `json:"transferable"`
	Addon        bool            `json:"addon"`
}

// CartLine is one requested ticket-type quantity in a cart submission.
type CartLine struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// CreateCartRequest is the payload for opening a cart. ReservedTicketIDs
// claims the caller's pending reservations alongside the regular lines.
type CreateCartRequest struct {
	EventID           string     `json:"event_id"`
	Tickets           []CartLine `json:"tickets"`
	ReservedTicketIDs []string   `json:"reserved_ticket_ids,omitempty"`
}

// CreateTransferRequest is the payload for starting a ticket transfer.
type CreateTransferRequest struct {
	RecipientEmail     string   `json:"recipient_email"`
	PurchasedTicketIDs []string `json:"purchased_ticket_ids,omitempty"`
	ReservedTicketIDs  []string `json:"reserved_ticket_ids,omitempty"`
}

// CreateReservedTicketRequest is the staff payload for reserving tickets for
// a person. Count fans out into that many identical reservations. A nil
// ExpirationDate defaults to the ticket type's sale end.
type CreateReservedTicketRequest struct {
	TicketTypeID   string     `json:"ticket_type_id"`
	Email          string     `json:"email"`
	Note           string     `json:"note,omitempty"`
	Count          int        `json:"count"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// UpdateReservedTicketRequest is the staff payload for editing a pending
// reservation.
type UpdateReservedTicketRequest struct {
	Email          string     `json:"email"`
	Note           string     `json:"note,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}
