package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/causacart/causacart/internal/config"
	"github.com/causacart/causacart/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	identity   func(http.Handler) http.Handler
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers, identity func(http.Handler) http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity middleware is required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
		identity: identity,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// Webhooks authenticate by signature, not identity.
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.identity)
	api.Use(h.MetricsContext)

	api.HandleFunc("/cart", h.GetCart).Methods("GET").Name("cart.get")
	api.HandleFunc("/cart", h.ClearCart).Methods("DELETE").Name("cart.clear")
	api.HandleFunc("/cart/summary", h.CartSummary).Methods("GET").Name("cart.summary")
	api.HandleFunc("/cart/merge", h.MergeCart).Methods("POST").Name("cart.merge")
	api.HandleFunc("/cart/items", h.AddCartItem).Methods("POST").Name("cart.items.add")
	api.HandleFunc("/cart/items/{productID}", h.SetCartItemQuantity).Methods("PUT").Name("cart.items.set")
	api.HandleFunc("/cart/items/{productID}", h.RemoveCartItem).Methods("DELETE").Name("cart.items.remove")

	api.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("checkout")
	api.HandleFunc("/checkout/confirm", h.ConfirmCheckout).Methods("POST").Name("checkout.confirm")

	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("orders.list")
	api.HandleFunc("/orders/{orderID}", h.GetOrder).Methods("GET").Name("orders.get")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})

	return r
}
