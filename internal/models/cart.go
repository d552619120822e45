package models

import (
	"time"

	"github.com/google/uuid"
)

type CartStatus string

const (
	CartStatusActive      CartStatus = "active"
	CartStatusCheckingOut CartStatus = "checking_out"
	CartStatusCompleted   CartStatus = "completed"
)

// Cart is an identity-scoped collection of pending purchase lines. Exactly
// one of UserID / SessionToken identifies the owner.
type Cart struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id,omitzero"`
	SessionToken string     `json:"session_token,omitempty"`
	Items        []CartItem `json:"items"`
	TotalCents   int        `json:"total_cents"`
	Status       CartStatus `json:"status"`
	Version      int        `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	SubtotalCents  int       `json:"subtotal_cents"`
}

// Line returns the cart line for the given product, or nil.
func (c *Cart) Line(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Quantity reports how many units of the product are already in the cart.
func (c *Cart) Quantity(productID uuid.UUID) int {
	if line := c.Line(productID); line != nil {
		return line.Quantity
	}
	return 0
}

// AddLine merges quantity into an existing line for the product, refreshing
// its price snapshot, or appends a new line. Totals are recomputed.
func (c *Cart) AddLine(product *Product, quantity int) {
	if line := c.Line(product.ID); line != nil {
		line.Quantity += quantity
		line.UnitPriceCents = product.PriceCents
		line.Name = product.Name
	} else {
		c.Items = append(c.Items, CartItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Quantity:       quantity,
			UnitPriceCents: product.PriceCents,
		})
	}
	c.Recompute()
}

// SetLineQuantity rewrites a line's quantity and price snapshot. A quantity
// of zero removes the line. Reports whether the line existed.
func (c *Cart) SetLineQuantity(product *Product, quantity int) bool {
	if quantity == 0 {
		return c.RemoveLine(product.ID)
	}
	line := c.Line(product.ID)
	if line == nil {
		return false
	}
	line.Quantity = quantity
	line.UnitPriceCents = product.PriceCents
	line.Name = product.Name
	c.Recompute()
	return true
}

// RemoveLine deletes the product's line, reporting whether it was present.
func (c *Cart) RemoveLine(productID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recompute()
			return true
		}
	}
	return false
}

// Clear empties the cart and resets its total.
func (c *Cart) Clear() {
	c.Items = nil
	c.TotalCents = 0
}

// Recompute rewrites every line subtotal and the cart total from the line
// quantities and price snapshots. Called on every mutation so the stored
// total is never stale.
func (c *Cart) Recompute() {
	total := 0
	for i := range c.Items {
		c.Items[i].SubtotalCents = c.Items[i].Quantity * c.Items[i].UnitPriceCents
		total += c.Items[i].SubtotalCents
	}
	c.TotalCents = total
}

// Merge folds the other cart's lines into this one: matching product lines
// sum quantities, non-matching lines are appended.
func (c *Cart) Merge(other *Cart) {
	if other == nil {
		return
	}
	for _, item := range other.Items {
		if line := c.Line(item.ProductID); line != nil {
			line.Quantity += item.Quantity
		} else {
			c.Items = append(c.Items, item)
		}
	}
	c.Recompute()
}
