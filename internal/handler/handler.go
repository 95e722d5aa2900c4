// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer. Callers are identified by
// the X-User-ID header set by the fronting auth layer; this package trusts it.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/repository"
	"github.com/emberfield/boxoffice/internal/service"
	"github.com/go-chi/chi/v5"
)

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// userID extracts the authenticated user from the request, or writes 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return id, true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, resource string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:   "validation failed",
			Reasons: verr.Reasons,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, service.ErrNotRefundable):
		writeError(w, http.StatusConflict, "order is not refundable")
	case errors.Is(err, repository.ErrReservedFrozen):
		writeError(w, http.StatusConflict, "reserved ticket has already been purchased")
	case errors.Is(err, repository.ErrTransferCompleted):
		writeError(w, http.StatusConflict, "transfer has already been completed")
	case errors.Is(err, service.ErrSessionNotComplete):
		writeError(w, http.StatusConflict, "payment session is not complete")
	case errors.Is(err, service.ErrProviderFailure):
		writeError(w, http.StatusBadGateway, "payment provider request failed")
	default:
		writeError(w, http.StatusInternalServerError, "failed to process "+resource)
	}
}

// ─── Events and ticket types ──────────────────────────────────────────────────

// EventHandler holds the HTTP handlers for event and ticket type management.
type EventHandler struct {
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// CreateTicketType handles POST /events/{id}/ticket-types
func (h *EventHandler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTicketTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tt, err := h.svc.CreateTicketType(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err, "ticket type")
		return
	}

	writeJSON(w, http.StatusCreated, tt)
}

// UpdateTicketType handles PUT /ticket-types/{id}
func (h *EventHandler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateTicketTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tt, err := h.svc.UpdateTicketType(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err, "ticket type")
		return
	}

	writeJSON(w, http.StatusOK, tt)
}

// ListTicketTypes handles GET /events/{id}/ticket-types
// Returns live inventory snapshots, computed fresh on every request.
func (h *EventHandler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.svc.ListTicketTypes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "event")
		return
	}

	if snapshots == nil {
		snapshots = []model.InventorySnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// ─── Users ────────────────────────────────────────────────────────────────────

// UserHandler holds the HTTP handlers for account management.
type UserHandler struct {
	svc *service.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Upsert handles POST /users
func (h *UserHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req model.UpsertUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	user, err := h.svc.Upsert(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Get handles GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
