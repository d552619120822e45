package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductStore reads the catalog and is the single authority for stock
// decrements.
type ProductStore struct {
	pool *pgxpool.Pool
}

// ErrInsufficientStock is returned when a decrement would take stock below
// zero. The store rejects the decrement rather than clamping.
var ErrInsufficientStock = errors.New("insufficient stock")

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const productColumns = `id, name, description, price_cents, stock, category, foundation_id, donation_bps, active, created_at`

func (s *ProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	return scanProduct(row)
}

// CheckAvailable reports whether the product currently has at least quantity
// units in stock. It reads only; nothing is reserved.
func (s *ProductStore) CheckAvailable(ctx context.Context, productID uuid.UUID, quantity int) (bool, int, error) {
	var stock int
	if err := s.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		return false, 0, err
	}
	return stock >= quantity, stock, nil
}

// DecrementStock atomically reduces the product's stock. Concurrent
// decrements racing for the last units lose here, not in application code.
func (s *ProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s, requested %d", ErrInsufficientStock, productID, quantity)
	}
	return nil
}

type productRow interface {
	Scan(dest ...any) error
}

func scanProduct(row productRow) (*Product, error) {
	var (
		product      Product
		foundationID pgtype.UUID
		description  pgtype.Text
		category     pgtype.Text
		createdAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&product.ID,
		&product.Name,
		&description,
		&product.PriceCents,
		&product.Stock,
		&category,
		&foundationID,
		&product.DonationBps,
		&product.Active,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		product.Description = description.String
	}
	if category.Valid {
		product.Category = category.String
	}
	if foundationID.Valid {
		product.FoundationID = foundationID.Bytes
	}
	product.CreatedAt = createdAt.Time

	return &product, nil
}
