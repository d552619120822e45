package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/causacart/causacart/internal/auth"
)

var requestValidator = validator.New()

// maxRequestBodyBytes bounds API request bodies; cart payloads are tiny.
const maxRequestBodyBytes = 64 << 10 // 64 KB

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	cart, err := h.cartService.Get(ctx, ident)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	cart, err := h.cartService.AddItem(ctx, ident, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

func (h *Handlers) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	productID, err := productIDFromRequest(r)
	if err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	cart, err := h.cartService.SetQuantity(ctx, ident, productID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	productID, err := productIDFromRequest(r)
	if err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	cart, err := h.cartService.RemoveItem(ctx, ident, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	cart, err := h.cartService.Clear(ctx, ident)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

func (h *Handlers) CartSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	summary, err := h.cartService.Summary(ctx, ident)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, summary)
}

type mergeCartRequest struct {
	SessionToken string `json:"session_id" validate:"required"`
}

// MergeCart folds the caller's previous guest cart into their user cart after
// login. Requires an authenticated user.
func (h *Handlers) MergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !ident.IsUser() {
		h.respondJSON(w, r, http.StatusUnauthorized, errorResponse{Message: "authentication required"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req mergeCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	cart, err := h.cartService.MergeGuestIntoUser(ctx, req.SessionToken, ident.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if cart == nil {
		// No guest cart to merge; return the user's current cart.
		cart, err = h.cartService.Get(ctx, ident)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	h.respondJSON(w, r, http.StatusOK, cart)
}

func productIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["productID"]
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid product id %q", raw)
	}
	return productID, nil
}
