package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causacart/causacart/internal/cache"
	"github.com/causacart/causacart/internal/config"
	"github.com/causacart/causacart/internal/logging"
	"github.com/causacart/causacart/internal/services"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

// Handlers provides the HTTP request handlers for the storefront API.
type Handlers struct {
	config           *config.Config
	db               *pgxpool.Pool
	cacheProvider    cache.Provider
	cartService      *services.CartService
	checkoutService  *services.CheckoutService
	reconcileService *services.ReconcileService
	orderService     *services.OrderService
	stripeRouter     *StripeEventRouter
	logger           *slog.Logger
}

type Dependencies struct {
	Config           *config.Config
	DB               *pgxpool.Pool
	CacheProvider    cache.Provider
	CartService      *services.CartService
	CheckoutService  *services.CheckoutService
	ReconcileService *services.ReconcileService
	OrderService     *services.OrderService
	StripeRouter     *StripeEventRouter
	Logger           *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.CartService == nil {
		return nil, fmt.Errorf("handlers dependencies: cartService is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.ReconcileService == nil {
		return nil, fmt.Errorf("handlers dependencies: reconcileService is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}

	return &Handlers{
		config:           deps.Config,
		db:               deps.DB,
		cacheProvider:    deps.CacheProvider,
		cartService:      deps.CartService,
		checkoutService:  deps.CheckoutService,
		reconcileService: deps.ReconcileService,
		orderService:     deps.OrderService,
		stripeRouter:     deps.StripeRouter,
		logger:           logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
