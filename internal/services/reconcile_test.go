package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/models"
)

type reconcileFixture struct {
	svc      *ReconcileService
	carts    *fakeCartStore
	orders   *fakeOrderStore
	catalog  *fakeProductStore
	payments *fakePayments

	order   *models.Order
	product *models.Product
	ident   auth.Identity
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	product := activeProduct(t, 20000, 10)
	carts := newFakeCartStore()
	orders := newFakeOrderStore()
	catalog := newFakeProductStore(product)
	stripeFake := newFakePayments()
	ident := auth.SessionIdentity("sess-reconcile")

	cart := &models.Cart{
		ID:           uuid.New(),
		SessionToken: ident.SessionToken,
		Items: []models.CartItem{
			{ProductID: product.ID, Name: product.Name, Quantity: 2, UnitPriceCents: 20000, SubtotalCents: 40000},
		},
		Status:  models.CartStatusCheckingOut,
		Version: 2,
	}
	carts.put(cart)

	order := &models.Order{
		OrderNumber:     "ORD-1-1",
		CartID:          cart.ID,
		SessionToken:    ident.SessionToken,
		Items:           []models.OrderItem{{ProductID: product.ID, Name: product.Name, Quantity: 2, UnitPriceCents: 20000, SubtotalCents: 40000}},
		SubtotalCents:   40000,
		TaxCents:        6400,
		TotalCents:      46400,
		PaymentIntentID: "pi_reconcile",
	}
	if err := orders.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}

	stripeFake.intents["pi_reconcile"] = &stripe.PaymentIntent{
		ID:            "pi_reconcile",
		Status:        stripe.PaymentIntentStatusSucceeded,
		LatestCharge:  &stripe.Charge{ID: "ch_test"},
		PaymentMethod: &stripe.PaymentMethod{ID: "pm_test"},
	}
	stripeFake.methods["pm_test"] = &stripe.PaymentMethod{
		ID: "pm_test",
		Card: &stripe.PaymentMethodCard{
			Brand:   stripe.PaymentMethodCardBrandVisa,
			Last4:   "4242",
			Funding: stripe.CardFundingCredit,
		},
	}

	return &reconcileFixture{
		svc:      NewReconcileService(orders, carts, catalog, stripeFake, testLogger()),
		carts:    carts,
		orders:   orders,
		catalog:  catalog,
		payments: stripeFake,
		order:    order,
		product:  product,
		ident:    ident,
	}
}

func succeededEventPayload(t *testing.T, intentID string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"id": intentID, "object": "payment_intent"})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return payload
}

func TestConfirmByClient_Settles(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	order, err := f.svc.ConfirmByClient(context.Background(), f.ident, f.order.ID, "pi_reconcile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.PaymentStatus != models.PaymentCompleted {
		t.Fatalf("unexpected status: %s", order.PaymentStatus)
	}
	if order.ChargeID != "ch_test" {
		t.Fatalf("unexpected charge id: %q", order.ChargeID)
	}
	if order.PaymentMethod == nil || order.PaymentMethod.Brand != "visa" || order.PaymentMethod.Last4 != "4242" {
		t.Fatalf("unexpected card summary: %+v", order.PaymentMethod)
	}
	if got := f.catalog.products[f.product.ID].Stock; got != 8 {
		t.Fatalf("expected stock decrement to 8, got %d", got)
	}
	if got := f.carts.carts[f.order.CartID].Status; got != models.CartStatusCompleted {
		t.Fatalf("expected completed cart, got %s", got)
	}
}

func TestConfirmByClient_NeverTrustsClientStatus(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)
	f.payments.intents["pi_reconcile"].Status = stripe.PaymentIntentStatusRequiresPaymentMethod

	_, err := f.svc.ConfirmByClient(context.Background(), f.ident, f.order.ID, "pi_reconcile")
	if !errors.Is(err, ErrPaymentNotSucceeded) {
		t.Fatalf("expected ErrPaymentNotSucceeded, got %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), f.order.ID)
	if stored.PaymentStatus != models.PaymentFailed {
		t.Fatalf("expected failed order, got %s", stored.PaymentStatus)
	}
	if got := f.catalog.products[f.product.ID].Stock; got != 10 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
	if got := f.carts.carts[f.order.CartID].Status; got != models.CartStatusActive {
		t.Fatalf("cart must reopen for retry, got %s", got)
	}
}

func TestConfirmByClient_IntentMismatch(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	_, err := f.svc.ConfirmByClient(context.Background(), f.ident, f.order.ID, "pi_someone_elses")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmByClient_WrongIdentity(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	_, err := f.svc.ConfirmByClient(context.Background(), auth.SessionIdentity("someone-else"), f.order.ID, "pi_reconcile")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcile_IdempotentAcrossConfirmAndWebhook(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	if _, err := f.svc.ConfirmByClient(context.Background(), f.ident, f.order.ID, "pi_reconcile"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The duplicate settlement path must be a clean no-op.
	if err := f.svc.HandlePaymentIntentSucceeded(context.Background(), succeededEventPayload(t, "pi_reconcile")); err != nil {
		t.Fatalf("expected idempotent no-op, got %v", err)
	}

	if got := f.catalog.decrements[f.product.ID]; got != 2 {
		t.Fatalf("stock decremented more than once: %d", got)
	}
}

func TestHandlePaymentIntentSucceeded_Settles(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	if err := f.svc.HandlePaymentIntentSucceeded(context.Background(), succeededEventPayload(t, "pi_reconcile")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), f.order.ID)
	if stored.PaymentStatus != models.PaymentCompleted {
		t.Fatalf("unexpected status: %s", stored.PaymentStatus)
	}
	if got := f.catalog.products[f.product.ID].Stock; got != 8 {
		t.Fatalf("expected stock decrement, got %d", got)
	}
}

func TestHandlePaymentIntentSucceeded_UnknownIntentIsSkipped(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	if err := f.svc.HandlePaymentIntentSucceeded(context.Background(), succeededEventPayload(t, "pi_unknown")); err != nil {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestHandlePaymentIntentFailed(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)

	if err := f.svc.HandlePaymentIntentFailed(context.Background(), succeededEventPayload(t, "pi_reconcile")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), f.order.ID)
	if stored.PaymentStatus != models.PaymentFailed {
		t.Fatalf("unexpected status: %s", stored.PaymentStatus)
	}
	if got := f.carts.carts[f.order.CartID].Status; got != models.CartStatusActive {
		t.Fatalf("cart must reopen for retry, got %s", got)
	}

	// A failure event after settlement is ignored.
	f2 := newReconcileFixture(t)
	if _, err := f2.svc.ConfirmByClient(context.Background(), f2.ident, f2.order.ID, "pi_reconcile"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f2.svc.HandlePaymentIntentFailed(context.Background(), succeededEventPayload(t, "pi_reconcile")); err != nil {
		t.Fatalf("expected no-op for settled order, got %v", err)
	}
	settled, _ := f2.orders.GetByID(context.Background(), f2.order.ID)
	if settled.PaymentStatus != models.PaymentCompleted {
		t.Fatalf("settled order must stay completed, got %s", settled.PaymentStatus)
	}
}

func TestFinalize_ProviderFailure(t *testing.T) {
	t.Parallel()
	f := newReconcileFixture(t)
	f.payments.retrieveErr = fmt.Errorf("stripe is down")

	_, err := f.svc.ConfirmByClient(context.Background(), f.ident, f.order.ID, "pi_reconcile")
	if !errors.Is(err, ErrExternalProvider) {
		t.Fatalf("expected ErrExternalProvider, got %v", err)
	}

	stored, _ := f.orders.GetByID(context.Background(), f.order.ID)
	if stored.PaymentStatus != models.PaymentPending {
		t.Fatalf("order must stay pending on provider failure, got %s", stored.PaymentStatus)
	}
}

func TestOrderService_IdentityScoping(t *testing.T) {
	t.Parallel()

	orders := newFakeOrderStore()
	owner := auth.SessionIdentity("sess-owner")
	order := &models.Order{SessionToken: owner.SessionToken, OrderNumber: "ORD-2-2"}
	if err := orders.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	svc := NewOrderService(orders)

	got, err := svc.Get(context.Background(), owner, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("unexpected order: %+v", got)
	}

	if _, err := svc.Get(context.Background(), auth.UserIdentity(uuid.New()), order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign identity, got %v", err)
	}

	list, err := svc.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one order, got %d", len(list))
	}
}
