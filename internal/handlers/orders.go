package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/causacart/causacart/internal/auth"
)

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	orders, err := h.orderService.List(ctx, ident)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	raw := mux.Vars(r)["orderID"]
	orderID, err := uuid.Parse(raw)
	if err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: fmt.Sprintf("invalid order id %q", raw)})
		return
	}

	order, err := h.orderService.Get(ctx, ident, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, order)
}
