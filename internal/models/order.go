package models

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type ShippingStatus string

const (
	ShippingPending    ShippingStatus = "pending"
	ShippingProcessing ShippingStatus = "processing"
	ShippingShipped    ShippingStatus = "shipped"
	ShippingDelivered  ShippingStatus = "delivered"
	ShippingCancelled  ShippingStatus = "cancelled"
)

// Order is an immutable-once-created snapshot of a checkout attempt. Only the
// payment/shipping status fields and the Stripe confirmation details evolve
// after creation.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CartID          uuid.UUID       `json:"cart_id"`
	UserID          uuid.UUID       `json:"user_id,omitzero"`
	SessionToken    string          `json:"session_token,omitempty"`
	Items           []OrderItem     `json:"items"`
	SubtotalCents   int             `json:"subtotal_cents"`
	TaxCents        int             `json:"tax_cents"`
	ShippingCents   int             `json:"shipping_cents"`
	TotalCents      int             `json:"total_cents"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Contact         ContactInfo     `json:"contact"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ShippingStatus  ShippingStatus  `json:"shipping_status"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ChargeID        string          `json:"charge_id,omitempty"`
	PaymentMethod   *CardSummary    `json:"payment_method,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          time.Time       `json:"paid_at,omitzero"`
}

type OrderItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	SubtotalCents  int       `json:"subtotal_cents"`
	FoundationID   uuid.UUID `json:"foundation_id,omitzero"`
	DonationCents  int       `json:"donation_cents"`
}

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// CardSummary is the payment-method summary recorded after a successful
// confirmation.
type CardSummary struct {
	Brand   string `json:"brand"`
	Last4   string `json:"last4"`
	Funding string `json:"funding"`
}

// NewOrderNumber generates an order number in the marketplace's historical
// format. Uniqueness is enforced by the orders table.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%d", now.UnixMilli(), rand.Intn(1000))
}
