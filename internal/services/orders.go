package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/db"
	"github.com/causacart/causacart/internal/models"
)

// defaultOrderListLimit caps history queries; there is no pagination yet.
const defaultOrderListLimit = 50

type orderReader interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*db.Order, error)
	ListBySession(ctx context.Context, sessionToken string, limit int) ([]*db.Order, error)
}

// OrderService serves identity-scoped order history reads.
type OrderService struct {
	orders orderReader
}

func NewOrderService(orders orderReader) *OrderService {
	return &OrderService{orders: orders}
}

// List returns the identity's most recent orders, newest first.
func (s *OrderService) List(ctx context.Context, ident auth.Identity) ([]*models.Order, error) {
	var (
		orders []*models.Order
		err    error
	)
	if ident.IsUser() {
		orders, err = s.orders.ListByUser(ctx, ident.UserID, defaultOrderListLimit)
	} else {
		orders, err = s.orders.ListBySession(ctx, ident.SessionToken, defaultOrderListLimit)
	}
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

// Get returns a single order if it belongs to the identity. An order owned by
// someone else reads as missing.
func (s *OrderService) Get(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}
	if !orderBelongsTo(order, ident) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}
