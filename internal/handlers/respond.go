package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/services"
)

type errorResponse struct {
	Message        string `json:"message"`
	ProductID      string `json:"product_id,omitempty"`
	AvailableStock *int   `json:"available_stock,omitempty"`
}

func (h *Handlers) respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

// respondError maps service errors onto the API's JSON error envelope. Stock
// conflicts carry the product and remaining stock so the client can adjust.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.loggerFromContext(r.Context())

	var stockErr *services.StockError
	switch {
	case errors.As(err, &stockErr):
		available := stockErr.Available
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Message:        stockErr.Error(),
			ProductID:      stockErr.ProductID.String(),
			AvailableStock: &available,
		})
	case errors.Is(err, services.ErrNotFound):
		h.respondJSON(w, r, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrPaymentNotSucceeded):
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, auth.ErrNoIdentity):
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Message: "authentication or " + auth.SessionHeader + " header required",
		})
	case errors.Is(err, services.ErrExternalProvider):
		logger.Error("payment provider error", "error", err)
		h.respondJSON(w, r, http.StatusBadGateway, errorResponse{Message: "payment provider unavailable"})
	default:
		logger.Error("request failed", "error", err)
		h.respondJSON(w, r, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

// decodeJSON reads a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
