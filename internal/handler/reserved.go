package handler

import (
	"net/http"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/service"
	"github.com/go-chi/chi/v5"
)

// ReservedHandler holds the HTTP handlers for staff-managed reserved tickets.
type ReservedHandler struct {
	svc *service.ReservedService
}

// NewReservedHandler constructs a ReservedHandler.
func NewReservedHandler(svc *service.ReservedService) *ReservedHandler {
	return &ReservedHandler{svc: svc}
}

// Create handles POST /reserved-tickets
func (h *ReservedHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReservedTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tickets, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "reserved ticket")
		return
	}

	writeJSON(w, http.StatusCreated, tickets)
}

// Get handles GET /reserved-tickets/{id}
func (h *ReservedHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "reserved ticket")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// ListMine handles GET /reserved-tickets
// Returns the caller's reservations.
func (h *ReservedHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	tickets, err := h.svc.ListByUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reserved tickets")
		return
	}

	if tickets == nil {
		tickets = []model.ReservedTicket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// Update handles PUT /reserved-tickets/{id}
func (h *ReservedHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateReservedTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ticket, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err, "reserved ticket")
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// Delete handles DELETE /reserved-tickets/{id}
func (h *ReservedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "reserved ticket")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
