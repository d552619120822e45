package db

import "github.com/causacart/causacart/internal/models"

type Product = models.Product
type Cart = models.Cart
type CartItem = models.CartItem
type Order = models.Order
type OrderItem = models.OrderItem
type CardSummary = models.CardSummary

const (
	CartActive      = models.CartStatusActive
	CartCheckingOut = models.CartStatusCheckingOut
	CartCompleted   = models.CartStatusCompleted

	PaymentPending   = models.PaymentPending
	PaymentCompleted = models.PaymentCompleted
	PaymentFailed    = models.PaymentFailed
)
