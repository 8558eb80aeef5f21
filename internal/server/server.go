// Package server exposes the market over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
	"github.com/alanyoungcy/tokenmarket/internal/server/handler"
	"github.com/alanyoungcy/tokenmarket/internal/server/middleware"
	"github.com/alanyoungcy/tokenmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards every route except health and metrics. Empty disables it.
	APIKey string
	// AdminKey guards /api/admin/. It falls back to APIKey when empty.
	AdminKey string
	// DepositSecret verifies deposit confirmations signed by the payment
	// gateway. Signed deposits skip the admin key check.
	DepositSecret   string
	TradeRateLimit  int
	TradeRateWindow time.Duration
	// Clock defaults to the wall clock.
	Clock clockwork.Clock
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Trade     *handler.TradeHandler
	Portfolio *handler.PortfolioHandler
	Wallet    *handler.WalletHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// wsHub and limiter may be nil.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, h, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the full handler tree.
func Routes(cfg Config, h Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /api/tokens", h.Market.ListTokens)
	mux.HandleFunc("GET /api/market", h.Market.Snapshot)
	mux.HandleFunc("GET /api/tokens/{symbol}/history", h.Market.PriceHistory)

	trade := middleware.RateLimit(limiter, "trade", cfg.TradeRateLimit, cfg.TradeRateWindow, logger)
	mux.Handle("POST /api/trades/buy", trade(http.HandlerFunc(h.Trade.Buy)))
	mux.Handle("POST /api/trades/sell", trade(http.HandlerFunc(h.Trade.Sell)))

	mux.HandleFunc("GET /api/portfolio", h.Portfolio.Portfolio)
	mux.HandleFunc("GET /api/transactions", h.Portfolio.Transactions)
	mux.HandleFunc("POST /api/wallet", h.Wallet.Open)

	adminKey := cfg.AdminKey
	if adminKey == "" {
		adminKey = cfg.APIKey
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	admin := middleware.Auth(adminKey)
	deposit := http.HandlerFunc(h.Wallet.Deposit)
	mux.Handle("POST /api/admin/tokens/seed", admin(http.HandlerFunc(h.Admin.SeedTokens)))
	mux.Handle("POST /api/admin/deposits", middleware.Signature(cfg.DepositSecret, clock)(deposit, admin(deposit)))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var root http.Handler = middleware.Identity(mux)
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics", "/api/admin/")(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)
	return root
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down with a grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
