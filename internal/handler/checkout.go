package handler

import (
	"errors"
	"net/http"

	"github.com/emberfield/boxoffice/internal/service"
	"github.com/go-chi/chi/v5"
)

// CheckoutHandler holds the HTTP handlers for checkout, webhook
// reconciliation, and refunds.
type CheckoutHandler struct {
	svc *service.CheckoutService
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// Create handles POST /carts/{id}/checkout
// Opens a hosted payment session for the cart and returns its URL.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	session, err := h.svc.CreateCheckout(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "cart")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// webhookEvent is the payload the payment provider posts on session events.
type webhookEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Webhook handles POST /webhooks/payment
// Reconciles completed checkout sessions into orders. Delivery is
// at-least-once; replays respond 200 with the existing order.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event webhookEvent
	if err := decodeJSON(r, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if event.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if event.Type != "" && event.Type != "checkout.session.completed" {
		// Unhandled event types are acknowledged so the provider stops
		// retrying them.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	order, err := h.svc.ResolveCompletedSession(r.Context(), event.SessionID)
	if err != nil {
		writeServiceError(w, err, "payment session")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /orders/{id}
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Refund handles POST /orders/{id}/refund
// A refund replay responds 200 with the already-refunded order.
func (h *CheckoutHandler) Refund(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	order, err := h.svc.Refund(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrAlreadyRefunded) {
			writeJSON(w, http.StatusOK, order)
			return
		}
		writeServiceError(w, err, "order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}
