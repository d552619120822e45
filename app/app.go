package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causacart/causacart/internal/auth"
	"github.com/causacart/causacart/internal/cache"
	"github.com/causacart/causacart/internal/config"
	"github.com/causacart/causacart/internal/db"
	"github.com/causacart/causacart/internal/handlers"
	"github.com/causacart/causacart/internal/logging"
	"github.com/causacart/causacart/internal/payments"
	"github.com/causacart/causacart/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers

	// IdentityMiddleware resolves the shopper identity for API routes.
	IdentityMiddleware func(http.Handler) http.Handler

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := cfg.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Format:        cfg.LogFormat,
		SentryEnabled: sentryEnabled,
	})

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	productStore := db.NewProductStore(database)
	cartStore := db.NewCartStore(database)
	orderStore := db.NewOrderStore(database)
	stripeClient := payments.NewClient(cfg.StripeSecretKey)
	pricer := services.NewPricer(cfg.TaxRateBps, cfg.FreeShippingThresholdCents, cfg.ShippingFlatCents)

	cartService := services.NewCartService(cartStore, productStore, logger.With("component", "cart_service"))
	checkoutService := services.NewCheckoutService(
		cartStore,
		productStore,
		orderStore,
		stripeClient,
		pricer,
		cfg.Currency,
		logger.With("component", "checkout_service"),
	)
	reconcileService := services.NewReconcileService(
		orderStore,
		cartStore,
		productStore,
		stripeClient,
		logger.With("component", "reconcile_service"),
	)
	orderService := services.NewOrderService(orderStore)
	stripeRouter := handlers.NewStripeEventRouter(reconcileService, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:           cfg,
		DB:               database,
		CacheProvider:    cacheProvider,
		CartService:      cartService,
		CheckoutService:  checkoutService,
		ReconcileService: reconcileService,
		OrderService:     orderService,
		StripeRouter:     stripeRouter,
		Logger:           logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:             cfg,
		Logger:             logger,
		DB:                 database,
		CacheProvider:      cacheProvider,
		Handlers:           h,
		IdentityMiddleware: verifier.Middleware(logger.With("component", "auth")),
		sentryEnabled:      sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
