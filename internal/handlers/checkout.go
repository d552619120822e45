package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/models"
	"github.com/causacart/causacart/internal/services"
)

type checkoutRequest struct {
	ShippingAddress shippingAddressRequest `json:"shipping_address" validate:"required"`
	Contact         contactRequest         `json:"contact" validate:"required"`
}

type shippingAddressRequest struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type contactRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// Checkout opens a payment attempt for the identity's cart and returns the
// intent client secret along with the pending order.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	result, err := h.checkoutService.Initiate(ctx, ident, services.CheckoutInput{
		ShippingAddress: models.ShippingAddress{
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		Contact: models.ContactInfo{
			Name:  req.Contact.Name,
			Phone: req.Contact.Phone,
			Email: req.Contact.Email,
		},
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, result)
}

type confirmRequest struct {
	OrderID         uuid.UUID `json:"order_id" validate:"required"`
	PaymentIntentID string    `json:"payment_intent_id" validate:"required"`
}

// ConfirmCheckout settles an order after the browser's payment UI reports
// success. The provider is the source of truth; a client claiming success for
// an unpaid intent gets a payment-not-succeeded error.
func (h *Handlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident, err := auth.IdentityFromContext(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if err := requestValidator.Struct(&req); err != nil {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	order, err := h.reconcileService.ConfirmByClient(ctx, ident, req.OrderID, req.PaymentIntentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, order)
}
