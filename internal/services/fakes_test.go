package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v84"

	"github.com/causacart/causacart/internal/db"
	"github.com/causacart/causacart/internal/models"
	"github.com/causacart/causacart/internal/payments"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCartStore keeps carts in memory with the same version semantics as the
// real store: reads hand out copies, writes compare versions. Setting
// conflicts makes the next n Save calls lose to a simulated concurrent writer.
type fakeCartStore struct {
	carts     map[uuid.UUID]*models.Cart
	conflicts int

	createErr error
	completed []uuid.UUID
	deleted   []uuid.UUID
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: map[uuid.UUID]*models.Cart{}}
}

func (f *fakeCartStore) put(cart *models.Cart) {
	f.carts[cart.ID] = copyCart(cart)
}

func copyCart(cart *models.Cart) *models.Cart {
	dup := *cart
	dup.Items = append([]models.CartItem(nil), cart.Items...)
	return &dup
}

func (f *fakeCartStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	for _, cart := range f.carts {
		if cart.UserID == userID && cart.Status != models.CartStatusCompleted {
			return copyCart(cart), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCartStore) GetActiveBySession(ctx context.Context, sessionToken string) (*models.Cart, error) {
	for _, cart := range f.carts {
		if cart.SessionToken == sessionToken && cart.Status != models.CartStatusCompleted {
			return copyCart(cart), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCartStore) Create(ctx context.Context, cart *models.Cart) error {
	if f.createErr != nil {
		return f.createErr
	}
	cart.ID = uuid.New()
	cart.Status = models.CartStatusActive
	cart.Version = 1
	f.put(cart)
	return nil
}

func (f *fakeCartStore) Save(ctx context.Context, cart *models.Cart) error {
	stored, ok := f.carts[cart.ID]
	if !ok {
		return fmt.Errorf("%w: cart %s", db.ErrVersionConflict, cart.ID)
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		return fmt.Errorf("%w: cart %s version %d", db.ErrVersionConflict, cart.ID, cart.Version)
	}
	if stored.Version != cart.Version {
		return fmt.Errorf("%w: cart %s version %d", db.ErrVersionConflict, cart.ID, cart.Version)
	}
	cart.Version++
	f.put(cart)
	return nil
}

func (f *fakeCartStore) TransferToUser(ctx context.Context, cartID uuid.UUID, version int, userID uuid.UUID) error {
	stored, ok := f.carts[cartID]
	if !ok || stored.Version != version {
		return fmt.Errorf("%w: cart %s", db.ErrVersionConflict, cartID)
	}
	stored.UserID = userID
	stored.SessionToken = ""
	stored.Version++
	return nil
}

func (f *fakeCartStore) Delete(ctx context.Context, cartID uuid.UUID) error {
	delete(f.carts, cartID)
	f.deleted = append(f.deleted, cartID)
	return nil
}

func (f *fakeCartStore) BeginCheckout(ctx context.Context, cartID uuid.UUID, version int) error {
	stored, ok := f.carts[cartID]
	if !ok || stored.Version != version || stored.Status != models.CartStatusActive {
		return fmt.Errorf("%w: cart %s", db.ErrVersionConflict, cartID)
	}
	stored.Status = models.CartStatusCheckingOut
	stored.Version++
	return nil
}

func (f *fakeCartStore) Reactivate(ctx context.Context, cartID uuid.UUID) error {
	if stored, ok := f.carts[cartID]; ok && stored.Status == models.CartStatusCheckingOut {
		stored.Status = models.CartStatusActive
		stored.Version++
	}
	return nil
}

func (f *fakeCartStore) Complete(ctx context.Context, cartID uuid.UUID) error {
	if stored, ok := f.carts[cartID]; ok && stored.Status != models.CartStatusCompleted {
		stored.Items = nil
		stored.TotalCents = 0
		stored.Status = models.CartStatusCompleted
		stored.Version++
	}
	f.completed = append(f.completed, cartID)
	return nil
}

type fakeProductStore struct {
	products   map[uuid.UUID]*models.Product
	decrements map[uuid.UUID]int
}

func newFakeProductStore(products ...*models.Product) *fakeProductStore {
	f := &fakeProductStore{
		products:   map[uuid.UUID]*models.Product{},
		decrements: map[uuid.UUID]int{},
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, ok := f.products[productID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	dup := *product
	return &dup, nil
}

func (f *fakeProductStore) CheckAvailable(ctx context.Context, productID uuid.UUID, quantity int) (bool, int, error) {
	product, ok := f.products[productID]
	if !ok {
		return false, 0, pgx.ErrNoRows
	}
	return product.Stock >= quantity, product.Stock, nil
}

func (f *fakeProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	product, ok := f.products[productID]
	if !ok || product.Stock < quantity {
		return fmt.Errorf("%w: product %s", db.ErrInsufficientStock, productID)
	}
	product.Stock -= quantity
	f.decrements[productID] += quantity
	return nil
}

type fakeOrderStore struct {
	orders    map[uuid.UUID]*models.Order
	createErr error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrderStore) Create(ctx context.Context, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	order.ID = uuid.New()
	order.PaymentStatus = models.PaymentPending
	order.ShippingStatus = models.ShippingPending
	dup := *order
	f.orders[order.ID] = &dup
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	dup := *order
	return &dup, nil
}

func (f *fakeOrderStore) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.PaymentIntentID == paymentIntentID {
			dup := *order
			return &dup, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOrderStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			dup := *order
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListBySession(ctx context.Context, sessionToken string, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, order := range f.orders {
		if order.SessionToken == sessionToken {
			dup := *order
			out = append(out, &dup)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, chargeID string, card *models.CardSummary) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", db.ErrInvalidStatusTransition, orderID)
	}
	if order.PaymentStatus != models.PaymentPending && order.PaymentStatus != models.PaymentProcessing {
		return fmt.Errorf("%w: order %s is %s", db.ErrInvalidStatusTransition, orderID, order.PaymentStatus)
	}
	order.PaymentStatus = models.PaymentCompleted
	order.ChargeID = chargeID
	order.PaymentMethod = card
	return nil
}

func (f *fakeOrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", db.ErrInvalidStatusTransition, orderID)
	}
	if order.PaymentStatus != models.PaymentPending && order.PaymentStatus != models.PaymentProcessing {
		return fmt.Errorf("%w: order %s is %s", db.ErrInvalidStatusTransition, orderID, order.PaymentStatus)
	}
	order.PaymentStatus = models.PaymentFailed
	return nil
}

type fakePayments struct {
	createErr     error
	createdParams []payments.IntentParams
	intents       map[string]*stripe.PaymentIntent
	methods       map[string]*stripe.PaymentMethod
	retrieveErr   error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		intents: map[string]*stripe.PaymentIntent{},
		methods: map[string]*stripe.PaymentMethod{},
	}
}

func (f *fakePayments) CreateIntent(ctx context.Context, params payments.IntentParams) (*stripe.PaymentIntent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdParams = append(f.createdParams, params)
	intent := &stripe.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", len(f.createdParams)),
		ClientSecret: "pi_secret_test",
		Amount:       params.AmountCents,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakePayments) RetrieveIntent(ctx context.Context, intentID string) (*stripe.PaymentIntent, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	intent, ok := f.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such intent: %s", intentID)
	}
	return intent, nil
}

func (f *fakePayments) RetrievePaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	method, ok := f.methods[paymentMethodID]
	if !ok {
		return nil, fmt.Errorf("no such payment method: %s", paymentMethodID)
	}
	return method, nil
}

func activeProduct(t *testing.T, priceCents, stock int) *models.Product {
	t.Helper()
	return &models.Product{
		ID:           uuid.New(),
		Name:         "Handmade Mug",
		PriceCents:   priceCents,
		Stock:        stock,
		FoundationID: uuid.New(),
		DonationBps:  1000,
		Active:       true,
	}
}
