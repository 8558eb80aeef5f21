package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/server/handler"
	"github.com/alanyoungcy/tokenmarket/internal/server/middleware"
)

type stubMarkets struct{}

func (stubMarkets) ListTokens(context.Context) ([]domain.MarketQuote, error) {
	return []domain.MarketQuote{}, nil
}

func (stubMarkets) Snapshot(context.Context) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{}, nil
}

func (stubMarkets) PriceHistory(context.Context, domain.Symbol, domain.ListOpts) ([]domain.PricePoint, error) {
	return nil, nil
}

type stubTrades struct{ users []string }

func (s *stubTrades) Buy(_ context.Context, user string, _ domain.TradeRequest) (domain.TradeResult, error) {
	s.users = append(s.users, user)
	return domain.TradeResult{}, nil
}

func (s *stubTrades) Sell(ctx context.Context, user string, req domain.TradeRequest) (domain.TradeResult, error) {
	return s.Buy(ctx, user, req)
}

type stubPortfolio struct{}

func (stubPortfolio) Portfolio(_ context.Context, user string) (domain.Portfolio, error) {
	return domain.Portfolio{UserID: user}, nil
}

func (stubPortfolio) TransactionHistory(context.Context, string, domain.TransactionFilter) (domain.TradeHistory, error) {
	return domain.TradeHistory{}, nil
}

type stubWallets struct{}

func (stubWallets) Open(_ context.Context, user string) (domain.Wallet, error) {
	return domain.Wallet{UserID: user}, nil
}

func (stubWallets) SaveContact(context.Context, domain.UserContact) error { return nil }

func (stubWallets) RecordDeposit(_ context.Context, user string, amount decimal.Decimal, _ string) (domain.Transaction, error) {
	return domain.Transaction{UserID: user, Amount: amount}, nil
}

type stubSeeder struct{}

func (stubSeeder) SeedCatalog(context.Context, []domain.CatalogEntry) ([]domain.MarketQuote, error) {
	return []domain.MarketQuote{}, nil
}

// countingLimiter allows the first n calls per key.
type countingLimiter struct {
	mu   sync.Mutex
	n    int
	seen map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key]++
	return l.seen[key] <= l.n, nil
}

func newTestRoutes(t *testing.T, cfg Config, limiter domain.RateLimiter) (http.Handler, *stubTrades) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trades := &stubTrades{}
	h := Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Market:    handler.NewMarketHandler(stubMarkets{}, logger),
		Trade:     handler.NewTradeHandler(trades, logger),
		Portfolio: handler.NewPortfolioHandler(stubPortfolio{}, logger),
		Wallet:    handler.NewWalletHandler(stubWallets{}, logger),
		Admin:     handler.NewAdminHandler(stubSeeder{}, nil, logger),
	}
	return Routes(cfg, h, nil, limiter, logger), trades
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_APIKey(t *testing.T) {
	h, _ := newTestRoutes(t, Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/tokens", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/tokens", "", map[string]string{"X-API-Key": "secret"}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/market", "", map[string]string{"Authorization": "Bearer secret"}).Code)
}

func TestRoutes_AdminKey(t *testing.T) {
	h, _ := newTestRoutes(t, Config{APIKey: "public", AdminKey: "root"}, nil)

	deposit := `{"user_id":"ada","amount":"10"}`
	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodPost, "/api/admin/deposits", deposit, map[string]string{"X-API-Key": "public"}).Code)
	assert.Equal(t, http.StatusCreated,
		do(h, http.MethodPost, "/api/admin/deposits", deposit, map[string]string{"X-API-Key": "root"}).Code)
	assert.Equal(t, http.StatusCreated,
		do(h, http.MethodPost, "/api/admin/tokens/seed", "", map[string]string{"X-API-Key": "root"}).Code)
}

func TestRoutes_SignedDeposit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h, _ := newTestRoutes(t, Config{APIKey: "public", AdminKey: "root", DepositSecret: "gw", Clock: clock}, nil)

	body := `{"user_id":"ada","amount":"10","reference":"psk_9"}`
	ts := clock.Now().Unix()
	headers := map[string]string{
		middleware.SignatureTimestampHeader: strconv.FormatInt(ts, 10),
		middleware.SignatureHeader:          middleware.Sign([]byte("gw"), ts, http.MethodPost, "/api/admin/deposits", []byte(body)),
	}
	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/admin/deposits", body, headers).Code)

	headers[middleware.SignatureHeader] = "forged"
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/admin/deposits", body, headers).Code)
}

func TestRoutes_IdentityReachesHandlers(t *testing.T) {
	h, trades := newTestRoutes(t, Config{}, nil)

	rec := do(h, http.MethodPost, "/api/trades/buy", `{"token_id":1,"quantity":"1","price":"1"}`,
		map[string]string{"X-User-ID": "ada"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ada"}, trades.users)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/portfolio", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/api/trades/buy", "", nil).Code)
}

func TestRoutes_TradeRateLimit(t *testing.T) {
	limiter := &countingLimiter{n: 2, seen: map[string]int{}}
	h, trades := newTestRoutes(t, Config{TradeRateLimit: 2, TradeRateWindow: time.Minute}, limiter)

	body := `{"token_id":1,"quantity":"1","price":"1"}`
	ada := map[string]string{"X-User-ID": "ada"}
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/trades/buy", body, ada).Code)
	}
	rec := do(h, http.MethodPost, "/api/trades/sell", body, ada)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Limits are per user.
	assert.Equal(t, http.StatusOK,
		do(h, http.MethodPost, "/api/trades/buy", body, map[string]string{"X-User-ID": "bola"}).Code)
	assert.Len(t, trades.users, 3)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/portfolio", "", ada).Code)
	assert.Equal(t, 2+1+1, limiter.seen["trade:ada"]+limiter.seen["trade:bola"])
}

func TestRoutes_CORSPreflight(t *testing.T) {
	h, _ := newTestRoutes(t, Config{APIKey: "secret", CORSOrigins: []string{"https://app.example.com"}}, nil)

	rec := do(h, http.MethodOptions, "/api/trades/buy", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}
