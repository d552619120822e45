package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causacart/causacart/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

// ErrInvalidStatusTransition is returned when a conditional status update
// matched no row: either the order is gone or it already left the expected
// state. Reconciliation treats the latter as its idempotency signal.
var ErrInvalidStatusTransition = errors.New("invalid order status transition")

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, order_number, cart_id, user_id, session_token, items,
	subtotal_cents, tax_cents, shipping_cents, total_cents,
	shipping_address, contact, payment_status, shipping_status,
	payment_intent_id, charge_id, payment_method, created_at, paid_at`

func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	contactJSON, err := json.Marshal(order.Contact)
	if err != nil {
		return err
	}

	userID := pgtype.UUID{Bytes: order.UserID, Valid: order.UserID != uuid.Nil}
	sessionToken := pgtype.Text{String: order.SessionToken, Valid: order.SessionToken != ""}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, cart_id, user_id, session_token, items,
			subtotal_cents, tax_cents, shipping_cents, total_cents,
			shipping_address, contact, payment_status, shipping_status, payment_intent_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', 'pending', $12)
		RETURNING id, created_at
	`,
		order.OrderNumber, order.CartID, userID, sessionToken, itemsJSON,
		order.SubtotalCents, order.TaxCents, order.ShippingCents, order.TotalCents,
		addressJSON, contactJSON, order.PaymentIntentID,
	)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &createdAt); err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentPending
	order.ShippingStatus = models.ShippingPending
	order.CreatedAt = createdAt.Time
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, paymentIntentID)
	return scanOrder(row)
}

func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ListBySession is ListByUser for guest session tokens.
func (s *OrderStore) ListBySession(ctx context.Context, sessionToken string, limit int) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE session_token = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionToken, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// MarkPaid performs the single allowed transition into completed. The status
// predicate is the compare-and-swap that makes client confirmation and the
// webhook racing for the same order resolve to exactly one winner.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, chargeID string, card *CardSummary) error {
	var cardJSON []byte
	if card != nil {
		var err error
		cardJSON, err = json.Marshal(card)
		if err != nil {
			return err
		}
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'completed', charge_id = $2, payment_method = $3, paid_at = NOW()
		WHERE id = $1 AND payment_status IN ('pending', 'processing')
	`, orderID, pgtype.Text{String: chargeID, Valid: chargeID != ""}, cardJSON)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/processing", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkPaymentFailed moves a non-terminal order to failed.
func (s *OrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'failed'
		WHERE id = $1 AND payment_status IN ('pending', 'processing')
	`, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/processing", ErrInvalidStatusTransition)
	}
	return nil
}

type orderRowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row orderRowScanner) (*Order, error) {
	var (
		order           Order
		userID          pgtype.UUID
		sessionToken    pgtype.Text
		itemsJSON       []byte
		addressJSON     []byte
		contactJSON     []byte
		paymentStatus   string
		shippingStatus  string
		paymentIntentID pgtype.Text
		chargeID        pgtype.Text
		cardJSON        []byte
		createdAt       pgtype.Timestamptz
		paidAt          pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CartID,
		&userID,
		&sessionToken,
		&itemsJSON,
		&order.SubtotalCents,
		&order.TaxCents,
		&order.ShippingCents,
		&order.TotalCents,
		&addressJSON,
		&contactJSON,
		&paymentStatus,
		&shippingStatus,
		&paymentIntentID,
		&chargeID,
		&cardJSON,
		&createdAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		order.UserID = userID.Bytes
	}
	if sessionToken.Valid {
		order.SessionToken = sessionToken.String
	}
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.ShippingStatus = models.ShippingStatus(shippingStatus)
	if paymentIntentID.Valid {
		order.PaymentIntentID = paymentIntentID.String
	}
	if chargeID.Valid {
		order.ChargeID = chargeID.String
	}
	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}

	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, err
		}
	}
	if addressJSON != nil {
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, err
		}
	}
	if contactJSON != nil {
		if err := json.Unmarshal(contactJSON, &order.Contact); err != nil {
			return nil, err
		}
	}
	if cardJSON != nil {
		if err := json.Unmarshal(cardJSON, &order.PaymentMethod); err != nil {
			return nil, err
		}
	}

	return &order, nil
}
