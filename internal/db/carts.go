package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causacart/causacart/internal/models"
)

// CartStore persists identity-scoped carts. Every mutation goes through an
// optimistic version check so concurrent writers for the same identity never
// silently overwrite each other.
type CartStore struct {
	pool *pgxpool.Pool
}

var (
	// ErrVersionConflict means the cart changed between read and write;
	// callers reload and retry.
	ErrVersionConflict = errors.New("cart was modified concurrently")

	// ErrCartExists means another request created the identity's cart first.
	ErrCartExists = errors.New("active cart already exists for identity")
)

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

const cartColumns = `id, user_id, session_token, items, total_cents, status, version, created_at, updated_at`

// GetActiveByUser returns the user's open cart (active or checking out).
// At most one such cart exists per identity; the partial unique index on the
// carts table backs that invariant.
func (s *CartStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE user_id = $1 AND status IN ('active', 'checking_out')
	`, userID)
	return scanCart(row)
}

// GetActiveBySession is GetActiveByUser for anonymous session tokens.
func (s *CartStore) GetActiveBySession(ctx context.Context, sessionToken string) (*Cart, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cartColumns+` FROM carts
		WHERE session_token = $1 AND status IN ('active', 'checking_out')
	`, sessionToken)
	return scanCart(row)
}

func (s *CartStore) GetByID(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, cartID)
	return scanCart(row)
}

// Create inserts a new cart in active status at version 1.
func (s *CartStore) Create(ctx context.Context, cart *Cart) error {
	itemsJSON, err := json.Marshal(cartItems(cart.Items))
	if err != nil {
		return err
	}

	userID := pgtype.UUID{Bytes: cart.UserID, Valid: cart.UserID != uuid.Nil}
	sessionToken := pgtype.Text{String: cart.SessionToken, Valid: cart.SessionToken != ""}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO carts (user_id, session_token, items, total_cents, status, version)
		VALUES ($1, $2, $3, $4, 'active', 1)
		RETURNING id, created_at, updated_at
	`, userID, sessionToken, itemsJSON, cart.TotalCents)

	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&cart.ID, &createdAt, &updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCartExists
		}
		return err
	}
	cart.Status = CartActive
	cart.Version = 1
	cart.CreatedAt = createdAt.Time
	cart.UpdatedAt = updatedAt.Time
	return nil
}

// Save writes the cart's items, total, and status, guarded by the version the
// caller read. On success the in-memory version is advanced to match the row.
func (s *CartStore) Save(ctx context.Context, cart *Cart) error {
	itemsJSON, err := json.Marshal(cartItems(cart.Items))
	if err != nil {
		return err
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE carts
		SET items = $1, total_cents = $2, status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5
	`, itemsJSON, cart.TotalCents, string(cart.Status), cart.ID, cart.Version)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart %s version %d", ErrVersionConflict, cart.ID, cart.Version)
	}
	cart.Version++
	return nil
}

// BeginCheckout moves an active cart to checking_out without touching its
// items. The status predicate makes a double-initiated checkout fail loudly.
func (s *CartStore) BeginCheckout(ctx context.Context, cartID uuid.UUID, version int) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE carts
		SET status = 'checking_out', version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status = 'active'
	`, cartID, version)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart %s version %d", ErrVersionConflict, cartID, version)
	}
	return nil
}

// Complete empties the cart and marks it completed. Already-completed carts
// are left alone, so reconciliation can call this twice safely.
func (s *CartStore) Complete(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE carts
		SET items = '[]'::jsonb, total_cents = 0, status = 'completed', version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('active', 'checking_out')
	`, cartID)
	return err
}

// Reactivate returns a checking_out cart to active, used when checkout fails
// after the status was flipped.
func (s *CartStore) Reactivate(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE carts
		SET status = 'active', version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'checking_out'
	`, cartID)
	return err
}

// TransferToUser re-owns a guest cart to a logged-in user. Used on login when
// the user has no open cart of their own. Fails with ErrCartExists if the user
// grabbed a cart in the meantime.
func (s *CartStore) TransferToUser(ctx context.Context, cartID uuid.UUID, version int, userID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE carts
		SET user_id = $1, session_token = NULL, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, userID, cartID, version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCartExists
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart %s version %d", ErrVersionConflict, cartID, version)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	return err
}

type cartRowScanner interface {
	Scan(dest ...any) error
}

func scanCart(row cartRowScanner) (*Cart, error) {
	var (
		cart         Cart
		userID       pgtype.UUID
		sessionToken pgtype.Text
		itemsJSON    []byte
		status       string
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&cart.ID,
		&userID,
		&sessionToken,
		&itemsJSON,
		&cart.TotalCents,
		&status,
		&cart.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		cart.UserID = userID.Bytes
	}
	if sessionToken.Valid {
		cart.SessionToken = sessionToken.String
	}
	cart.Status = models.CartStatus(status)
	cart.CreatedAt = createdAt.Time
	cart.UpdatedAt = updatedAt.Time

	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &cart.Items); err != nil {
			return nil, err
		}
	}

	return &cart, nil
}

func cartItems(items []CartItem) []CartItem {
	if items == nil {
		return []CartItem{}
	}
	return items
}
