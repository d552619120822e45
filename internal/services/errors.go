package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers missing products, carts, and orders.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState covers inactive products and carts outside the status a
	// mutation expects.
	ErrInvalidState = errors.New("not in expected state")

	// ErrInsufficientStock is the sentinel StockError matches.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrEmptyCart rejects checkout of a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrPaymentNotSucceeded means the provider reports the intent in a
	// non-succeeded state; the order is failed, inventory untouched.
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")

	// ErrExternalProvider wraps payment-provider call failures. Nothing was
	// committed locally when checkout returns it.
	ErrExternalProvider = errors.New("payment provider request failed")
)

// StockError reports a stock conflict with enough detail for the client to
// adjust the requested quantity.
type StockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
