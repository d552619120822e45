package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/db"
	"github.com/causacart/causacart/internal/models"
)

// maxSaveRetries bounds the reload-and-retry loop cart mutations run when a
// concurrent writer bumps the cart version first.
const maxSaveRetries = 3

type cartStore interface {
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*db.Cart, error)
	GetActiveBySession(ctx context.Context, sessionToken string) (*db.Cart, error)
	Create(ctx context.Context, cart *db.Cart) error
	Save(ctx context.Context, cart *db.Cart) error
	TransferToUser(ctx context.Context, cartID uuid.UUID, version int, userID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type productReader interface {
	GetByID(ctx context.Context, productID uuid.UUID) (*db.Product, error)
}

// CartService owns every cart mutation. Reads of a missing cart materialize an
// empty one; writes go through the store's version check and are retried
// against a fresh copy on conflict, so two requests racing on the same cart
// both land instead of one silently vanishing.
type CartService struct {
	carts    cartStore
	products productReader
	logger   *slog.Logger
}

func NewCartService(carts cartStore, products productReader, logger *slog.Logger) *CartService {
	return &CartService{carts: carts, products: products, logger: logger}
}

// Get returns the identity's open cart, creating an empty active one if none
// exists yet.
func (s *CartService) Get(ctx context.Context, ident auth.Identity) (*models.Cart, error) {
	return s.getOrCreate(ctx, ident)
}

// AddItem adds quantity units of a product to the identity's cart. The product
// must exist, be active, and have enough stock to cover the resulting line
// quantity. Prices are snapshotted from the product at add time.
func (s *CartService) AddItem(ctx context.Context, ident auth.Identity, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidState)
	}

	product, err := s.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %q is inactive", ErrInvalidState, product.Name)
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		cart, err := s.getOrCreate(ctx, ident)
		if err != nil {
			return nil, err
		}
		if cart.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: cart is checking out", ErrInvalidState)
		}

		wantQty := cart.Quantity(productID) + quantity
		if product.Stock < wantQty {
			return nil, &StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   wantQty,
				Available:   product.Stock,
			}
		}

		cart.AddLine(product, quantity)
		if err := s.carts.Save(ctx, cart); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cart, nil
	}
	return nil, lastErr
}

// SetQuantity rewrites a cart line's quantity. Zero removes the line. A
// positive quantity requires the line to already exist and stock to cover it.
func (s *CartService) SetQuantity(ctx context.Context, ident auth.Identity, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidState)
	}

	product, err := s.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > 0 && product.Stock < quantity {
		return nil, &StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   quantity,
			Available:   product.Stock,
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		cart, err := s.getActive(ctx, ident)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: cart", ErrNotFound)
			}
			return nil, err
		}
		if cart.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: cart is checking out", ErrInvalidState)
		}

		if !cart.SetLineQuantity(product, quantity) {
			if quantity == 0 {
				return cart, nil
			}
			return nil, fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
		}

		if err := s.carts.Save(ctx, cart); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cart, nil
	}
	return nil, lastErr
}

// RemoveItem deletes a product's line from the cart. Removing a product that
// is not in the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, ident auth.Identity, productID uuid.UUID) (*models.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		cart, err := s.getActive(ctx, ident)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: cart", ErrNotFound)
			}
			return nil, err
		}
		if cart.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: cart is checking out", ErrInvalidState)
		}

		if !cart.RemoveLine(productID) {
			return cart, nil
		}

		if err := s.carts.Save(ctx, cart); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cart, nil
	}
	return nil, lastErr
}

// Clear empties the identity's cart.
func (s *CartService) Clear(ctx context.Context, ident auth.Identity) (*models.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		cart, err := s.getActive(ctx, ident)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: cart", ErrNotFound)
			}
			return nil, err
		}
		if cart.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: cart is checking out", ErrInvalidState)
		}

		cart.Clear()
		if err := s.carts.Save(ctx, cart); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cart, nil
	}
	return nil, lastErr
}

// CartSummary is the lightweight shape the badge endpoint returns: no cart id,
// no price snapshots, just counts and line subtotals.
type CartSummary struct {
	ItemCount  int           `json:"item_count"`
	TotalCents int           `json:"total_cents"`
	Lines      []SummaryLine `json:"lines"`
}

type SummaryLine struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	SubtotalCents int    `json:"subtotal_cents"`
}

// Summary returns the cart badge view. A missing cart reads as an empty
// summary rather than an error.
func (s *CartService) Summary(ctx context.Context, ident auth.Identity) (*CartSummary, error) {
	summary := &CartSummary{Lines: []SummaryLine{}}

	cart, err := s.getActive(ctx, ident)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return summary, nil
		}
		return nil, err
	}

	for _, item := range cart.Items {
		summary.ItemCount += item.Quantity
		summary.Lines = append(summary.Lines, SummaryLine{
			Name:          item.Name,
			Quantity:      item.Quantity,
			SubtotalCents: item.SubtotalCents,
		})
	}
	summary.TotalCents = cart.TotalCents
	return summary, nil
}

// MergeGuestIntoUser folds a guest session's cart into the user's cart on
// login. Matching product lines sum their quantities, other lines carry over,
// and the guest cart is deleted. If the user has no open cart the guest cart
// is simply re-owned. Returns the resulting cart, or nil when there was no
// guest cart to merge.
func (s *CartService) MergeGuestIntoUser(ctx context.Context, sessionToken string, userID uuid.UUID) (*models.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		guest, err := s.carts.GetActiveBySession(ctx, sessionToken)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, err
		}
		if guest.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: guest cart is checking out", ErrInvalidState)
		}

		target, err := s.carts.GetActiveByUser(ctx, userID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			// User has no cart: adopt the guest cart wholesale.
			if err := s.carts.TransferToUser(ctx, guest.ID, guest.Version, userID); err != nil {
				if errors.Is(err, db.ErrVersionConflict) || errors.Is(err, db.ErrCartExists) {
					lastErr = err
					continue
				}
				return nil, err
			}
			guest.UserID = userID
			guest.SessionToken = ""
			guest.Version++
			return guest, nil
		}
		if target.Status != models.CartStatusActive {
			return nil, fmt.Errorf("%w: cart is checking out", ErrInvalidState)
		}

		target.Merge(guest)
		if err := s.carts.Save(ctx, target); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if err := s.carts.Delete(ctx, guest.ID); err != nil {
			s.logger.Warn("failed to delete merged guest cart", "cart_id", guest.ID, "error", err)
		}
		return target, nil
	}
	return nil, lastErr
}

func (s *CartService) getActive(ctx context.Context, ident auth.Identity) (*models.Cart, error) {
	if ident.IsUser() {
		return s.carts.GetActiveByUser(ctx, ident.UserID)
	}
	return s.carts.GetActiveBySession(ctx, ident.SessionToken)
}

func (s *CartService) getOrCreate(ctx context.Context, ident auth.Identity) (*models.Cart, error) {
	cart, err := s.getActive(ctx, ident)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	cart = &models.Cart{
		UserID:       ident.UserID,
		SessionToken: ident.SessionToken,
		Items:        []models.CartItem{},
		Status:       models.CartStatusActive,
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		if errors.Is(err, db.ErrCartExists) {
			// Lost the creation race; the winner's cart is ours to use.
			return s.getActive(ctx, ident)
		}
		return nil, err
	}
	return cart, nil
}

func (s *CartService) getProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		return nil, err
	}
	return product, nil
}
