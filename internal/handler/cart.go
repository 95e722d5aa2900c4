package handler

import (
	"net/http"

	"github.com/emberfield/boxoffice/internal/model"
	"github.com/emberfield/boxoffice/internal/service"
)

// CartHandler holds the HTTP handlers for carts.
type CartHandler struct {
	svc *service.CartService
}

// NewCartHandler constructs a CartHandler.
func NewCartHandler(svc *service.CartService) *CartHandler {
	return &CartHandler{svc: svc}
}

// cartResponse decorates a cart with its derived totals.
type cartResponse struct {
	*model.Cart
	Status model.CartStatus `json:"status"`
	Totals model.CartTotals `json:"totals"`
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, status int, cart *model.Cart) {
	totals, err := h.svc.Totals(r.Context(), cart)
	if err != nil {
		writeServiceError(w, err, "cart")
		return
	}
	writeJSON(w, status, cartResponse{
		Cart:   cart,
		Status: cart.Status(nowUTC()),
		Totals: totals,
	})
}

// Create handles POST /carts
// Opens a new cart for the caller, expiring any previous active cart.
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req model.CreateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cart, err := h.svc.Create(r.Context(), uid, &req)
	if err != nil {
		writeServiceError(w, err, "cart")
		return
	}

	h.respond(w, r, http.StatusCreated, cart)
}

// Active handles GET /carts/active
// Returns the caller's current active cart.
func (h *CartHandler) Active(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	cart, err := h.svc.Active(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err, "cart")
		return
	}

	h.respond(w, r, http.StatusOK, cart)
}
