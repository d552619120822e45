package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v84"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/db"
	"github.com/causacart/causacart/internal/logging"
	"github.com/causacart/causacart/internal/models"
	"github.com/causacart/causacart/internal/observability"
	"github.com/causacart/causacart/internal/payments"
)

type checkoutCartStore interface {
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*db.Cart, error)
	GetActiveBySession(ctx context.Context, sessionToken string) (*db.Cart, error)
	BeginCheckout(ctx context.Context, cartID uuid.UUID, version int) error
}

type inventoryGate interface {
	GetByID(ctx context.Context, productID uuid.UUID) (*db.Product, error)
	CheckAvailable(ctx context.Context, productID uuid.UUID, quantity int) (bool, int, error)
}

type orderCreator interface {
	Create(ctx context.Context, order *db.Order) error
}

type intentCreator interface {
	CreateIntent(ctx context.Context, params payments.IntentParams) (*stripe.PaymentIntent, error)
}

// CheckoutService turns a cart into a pending order with a payment intent.
// It never moves money and never touches stock; those belong to confirmation.
type CheckoutService struct {
	carts    checkoutCartStore
	products inventoryGate
	orders   orderCreator
	payments intentCreator
	pricer   *Pricer
	currency string
	logger   *slog.Logger
}

func NewCheckoutService(carts checkoutCartStore, products inventoryGate, orders orderCreator, intents intentCreator, pricer *Pricer, currency string, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		products: products,
		orders:   orders,
		payments: intents,
		pricer:   pricer,
		currency: currency,
		logger:   logger,
	}
}

type CheckoutInput struct {
	ShippingAddress models.ShippingAddress
	Contact         models.ContactInfo
}

// CheckoutResult is what the client needs to drive the payment UI: the intent
// secret plus the order it will confirm against.
type CheckoutResult struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	ClientSecret string    `json:"client_secret"`
	Totals       Totals    `json:"totals"`
}

// Initiate runs the checkout sequence: load the cart, re-verify stock, price
// the order, create the payment intent, persist the pending order, and move
// the cart to checking_out. A provider failure leaves everything untouched so
// the client can simply retry.
func (s *CheckoutService) Initiate(ctx context.Context, ident auth.Identity, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.initiate",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Initiate"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.received", 1)

	cart, err := s.getActive(ctx, ident)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			recordFailure("no_cart")
			return nil, fmt.Errorf("%w: no open cart for identity", ErrEmptyCart)
		}
		recordFailure("cart_lookup_failed")
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.Status != models.CartStatusActive {
		recordFailure("cart_checking_out")
		return nil, fmt.Errorf("%w: checkout already in progress", ErrInvalidState)
	}
	if len(cart.Items) == 0 {
		recordFailure("empty_cart")
		return nil, ErrEmptyCart
	}

	orderItems, err := s.verifyAndSnapshot(ctx, cart)
	if err != nil {
		recordFailure("stock_check_failed")
		return nil, err
	}

	subtotal := 0
	for _, item := range orderItems {
		subtotal += item.SubtotalCents
	}
	totals := s.pricer.Quote(subtotal)

	metadata, err := intentMetadata(cart, ident)
	if err != nil {
		recordFailure("metadata_encode_failed")
		return nil, err
	}

	intent, err := s.payments.CreateIntent(ctx, payments.IntentParams{
		AmountCents: int64(totals.TotalCents),
		Currency:    s.currency,
		Metadata:    metadata,
	})
	if err != nil {
		recordFailure("intent_create_failed")
		logger.Error("payment intent creation failed", "cart_id", cart.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExternalProvider, err)
	}

	order := &db.Order{
		OrderNumber:     models.NewOrderNumber(time.Now()),
		CartID:          cart.ID,
		UserID:          cart.UserID,
		SessionToken:    cart.SessionToken,
		Items:           orderItems,
		SubtotalCents:   totals.SubtotalCents,
		TaxCents:        totals.TaxCents,
		ShippingCents:   totals.ShippingCents,
		TotalCents:      totals.TotalCents,
		ShippingAddress: input.ShippingAddress,
		Contact:         input.Contact,
		PaymentIntentID: intent.ID,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		recordFailure("order_create_failed")
		// The intent exists without a local order; reconciliation has nothing
		// to find for it. Surface loudly so it can be cancelled out of band.
		logger.Error("order creation failed after intent was created",
			"cart_id", cart.ID, "payment_intent_id", intent.ID, "error", err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("checkout.order.created", 1)

	if err := s.carts.BeginCheckout(ctx, cart.ID, cart.Version); err != nil {
		// The order and intent stand regardless; reconciliation completes the
		// cart by id, so a lost status flip only re-opens the cart for edits.
		logger.Warn("failed to move cart to checking_out", "cart_id", cart.ID, "error", err)
	}

	logger.Info("checkout initiated",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"cart_id", cart.ID,
		"total_cents", totals.TotalCents,
	)
	meter.Count("checkout.intent.created", 1)

	return &CheckoutResult{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		ClientSecret: intent.ClientSecret,
		Totals:       totals,
	}, nil
}

// verifyAndSnapshot re-checks stock for every cart line and builds the order
// item snapshots, carrying foundation attribution over from the catalog.
// Nothing is reserved; the decrement happens at confirmation.
func (s *CheckoutService) verifyAndSnapshot(ctx context.Context, cart *models.Cart) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		ok, available, err := s.products.CheckAvailable(ctx, line.ProductID, line.Quantity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s", ErrNotFound, line.ProductID)
			}
			return nil, err
		}
		if !ok {
			return nil, &StockError{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				Requested:   line.Quantity,
				Available:   available,
			}
		}

		product, err := s.products.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			Name:           product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
			FoundationID:   product.FoundationID,
			DonationCents:  product.DonationCents() * line.Quantity,
		})
	}
	return items, nil
}

func (s *CheckoutService) getActive(ctx context.Context, ident auth.Identity) (*models.Cart, error) {
	if ident.IsUser() {
		return s.carts.GetActiveByUser(ctx, ident.UserID)
	}
	return s.carts.GetActiveBySession(ctx, ident.SessionToken)
}

// intentMetadata builds the audit trail attached to the payment intent: which
// cart, which identity, and a compact item summary.
func intentMetadata(cart *models.Cart, ident auth.Identity) (map[string]string, error) {
	type itemSummary struct {
		ProductID      uuid.UUID `json:"product_id"`
		Name           string    `json:"name"`
		Quantity       int       `json:"quantity"`
		UnitPriceCents int       `json:"unit_price_cents"`
	}
	summaries := make([]itemSummary, 0, len(cart.Items))
	for _, line := range cart.Items {
		summaries = append(summaries, itemSummary{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	itemsJSON, err := json.Marshal(summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item summary: %w", err)
	}

	identity := "guest"
	if ident.IsUser() {
		identity = ident.UserID.String()
	}
	return map[string]string{
		"cart_id": cart.ID.String(),
		"user_id": identity,
		"items":   string(itemsJSON),
	}, nil
}
