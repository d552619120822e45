package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

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
)

type reconcileOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*db.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, chargeID string, card *db.CardSummary) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error
}

type cartCompleter interface {
	Complete(ctx context.Context, cartID uuid.UUID) error
	Reactivate(ctx context.Context, cartID uuid.UUID) error
}

type stockDecrementer interface {
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type intentRetriever interface {
	RetrieveIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error)
	RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error)
}

// ReconcileService settles orders against the payment provider's truth. Both
// the client confirmation endpoint and webhook deliveries land here, and both
// may arrive for the same order in any sequence; the order store's status
// compare-and-swap picks exactly one winner and the loser becomes a no-op.
type ReconcileService struct {
	orders   reconcileOrderStore
	carts    cartCompleter
	products stockDecrementer
	payments intentRetriever
	logger   *slog.Logger
}

func NewReconcileService(orders reconcileOrderStore, carts cartCompleter, products stockDecrementer, intents intentRetriever, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		orders:   orders,
		carts:    carts,
		products: products,
		payments: intents,
		logger:   logger,
	}
}

// ConfirmByClient settles an order on behalf of the browser after the payment
// UI reports success. The reported status is never trusted; the intent is
// re-fetched from the provider. The order must belong to the calling identity
// and the supplied intent id must be the one checkout attached to the order.
func (s *ReconcileService) ConfirmByClient(ctx context.Context, ident auth.Identity, orderID uuid.UUID, paymentIntentID string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.reconcile.confirm",
		sentry.WithOpName("service.reconcile"),
		sentry.WithDescription("ConfirmByClient"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}
	if !orderBelongsTo(order, ident) {
		// Not distinguishable from a missing order on purpose.
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.PaymentIntentID != paymentIntentID {
		return nil, fmt.Errorf("%w: payment intent does not match order", ErrNotFound)
	}

	if err := s.finalize(ctx, order, "client_confirm"); err != nil {
		return nil, err
	}

	return s.orders.GetByID(ctx, orderID)
}

// HandlePaymentIntentSucceeded settles the order tied to a succeeded-intent
// webhook delivery. An intent with no local order is logged and skipped so an
// unrelated event on the same account cannot put the delivery into a retry
// loop.
func (s *ReconcileService) HandlePaymentIntentSucceeded(ctx context.Context, payload json.RawMessage) error {
	span := sentry.StartSpan(
		ctx,
		"service.reconcile.intent_succeeded",
		sentry.WithOpName("service.reconcile"),
		sentry.WithDescription("HandlePaymentIntentSucceeded"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := logging.FromContext(ctx, s.logger)

	intent, err := parseIntentPayload(payload)
	if err != nil {
		return err
	}

	order, err := s.orders.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info("no order for payment intent, skipping", "payment_intent_id", intent.ID)
			return nil
		}
		return fmt.Errorf("failed to look up order for intent %s: %w", intent.ID, err)
	}

	return s.finalize(ctx, order, "webhook")
}

// HandlePaymentIntentFailed marks the order tied to a failed intent as failed.
// An already-settled order is left alone.
func (s *ReconcileService) HandlePaymentIntentFailed(ctx context.Context, payload json.RawMessage) error {
	logger := logging.FromContext(ctx, s.logger)

	intent, err := parseIntentPayload(payload)
	if err != nil {
		return err
	}

	order, err := s.orders.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info("no order for failed payment intent, skipping", "payment_intent_id", intent.ID)
			return nil
		}
		return fmt.Errorf("failed to look up order for intent %s: %w", intent.ID, err)
	}

	if err := s.orders.MarkPaymentFailed(ctx, order.ID); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("order already settled, ignoring failure event",
				"order_id", order.ID, "payment_intent_id", intent.ID)
			return nil
		}
		return err
	}
	s.reopenCart(ctx, logger, order.CartID)

	logger.Info("order payment failed", "order_id", order.ID, "payment_intent_id", intent.ID)
	observability.MeterFromContext(ctx).Count("reconcile.payment.failed", 1)
	return nil
}

// reopenCart returns the order's cart to active so the shopper can retry
// after a failed payment. The items are still on the cart; checkout never
// cleared them.
func (s *ReconcileService) reopenCart(ctx context.Context, logger *slog.Logger, cartID uuid.UUID) {
	if err := s.carts.Reactivate(ctx, cartID); err != nil {
		logger.Warn("failed to reactivate cart after payment failure", "cart_id", cartID, "error", err)
	}
}

// finalize is the single settlement path. It fetches the authoritative intent
// state, and only on a provider-confirmed success marks the order completed,
// decrements stock, and closes the cart. The MarkPaid compare-and-swap losing
// means another caller already settled the order, which is success.
func (s *ReconcileService) finalize(ctx context.Context, order *models.Order, source string) error {
	logger := logging.FromContext(ctx, s.logger).With(
		"order_id", order.ID,
		"payment_intent_id", order.PaymentIntentID,
		"source", source,
	)
	meter := observability.MeterFromContext(ctx)

	intent, err := s.payments.RetrieveIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalProvider, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		if markErr := s.orders.MarkPaymentFailed(ctx, order.ID); markErr != nil && !errors.Is(markErr, db.ErrInvalidStatusTransition) {
			logger.Warn("failed to mark order failed", "error", markErr)
		}
		s.reopenCart(ctx, logger, order.CartID)
		meter.Count("reconcile.payment.not_succeeded", 1, sentry.WithAttributes(
			attribute.String("intent_status", string(intent.Status)),
		))
		return fmt.Errorf("%w: intent status is %s", ErrPaymentNotSucceeded, intent.Status)
	}

	chargeID := ""
	if intent.LatestCharge != nil {
		chargeID = intent.LatestCharge.ID
	}
	card := s.cardSummary(ctx, logger, intent)

	if err := s.orders.MarkPaid(ctx, order.ID, chargeID, card); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("order already settled")
			return nil
		}
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	// This is the first and only transition into completed, so the stock
	// decrement below runs exactly once per order.
	for _, item := range order.Items {
		if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			logger.Error("stock decrement failed for paid order, inventory is inconsistent",
				"product_id", item.ProductID, "quantity", item.Quantity, "error", err)
			meter.Count("reconcile.inventory.inconsistent", 1, sentry.WithAttributes(
				attribute.String("product_id", item.ProductID.String()),
			))
		}
	}

	if err := s.carts.Complete(ctx, order.CartID); err != nil {
		logger.Warn("failed to complete cart for settled order", "cart_id", order.CartID, "error", err)
	}

	logger.Info("order settled", "charge_id", chargeID)
	meter.Count("reconcile.payment.completed", 1)
	return nil
}

// cardSummary fetches the card details behind the intent's payment method.
// Failures here degrade to an order without a stored card summary.
func (s *ReconcileService) cardSummary(ctx context.Context, logger *slog.Logger, intent *stripe.PaymentIntent) *models.CardSummary {
	if intent.PaymentMethod == nil || intent.PaymentMethod.ID == "" {
		return nil
	}
	method, err := s.payments.RetrievePaymentMethod(ctx, intent.PaymentMethod.ID)
	if err != nil {
		logger.Warn("failed to retrieve payment method", "payment_method_id", intent.PaymentMethod.ID, "error", err)
		return nil
	}
	if method.Card == nil {
		return nil
	}
	return &models.CardSummary{
		Brand:   string(method.Card.Brand),
		Last4:   method.Card.Last4,
		Funding: string(method.Card.Funding),
	}
}

func parseIntentPayload(payload json.RawMessage) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent payload: %w", err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("payment intent payload has no id")
	}
	return &intent, nil
}

func orderBelongsTo(order *models.Order, ident auth.Identity) bool {
	if ident.IsUser() {
		return order.UserID == ident.UserID
	}
	return order.SessionToken != "" && order.SessionToken == ident.SessionToken
}
