package handler

import (
	"net/http"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/service"
	"github.com/go-chi/chi/v5"
)

// TransferHandler holds the HTTP handlers for ticket transfers.
type TransferHandler struct {
	svc   *service.TransferService
	users service.UserReader
}

// NewTransferHandler constructs a TransferHandler.
func NewTransferHandler(svc *service.TransferService, users service.UserReader) *TransferHandler {
	return &TransferHandler{svc: svc, users: users}
}

// Create handles POST /transfers
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req model.CreateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	transfer, err := h.svc.Create(r.Context(), uid, &req)
	if err != nil {
		writeServiceError(w, err, "transfer")
		return
	}

	writeJSON(w, http.StatusCreated, transfer)
}

// Get handles GET /transfers/{id}
// Visible to the sender and to the account holding the recipient email.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err, "user")
		return
	}

	transfer, err := h.svc.Get(r.Context(), uid, user.Email, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "transfer")
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

// Complete handles POST /transfers/{id}/complete
// Completing an already completed transfer responds 200 with it unchanged.
func (h *TransferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	transfer, err := h.svc.Complete(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "transfer")
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

// Delete handles DELETE /transfers/{id}
func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "transfer")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
