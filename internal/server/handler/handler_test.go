package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/server/middleware"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTrades struct {
	gotUser string
	gotReq  domain.TradeRequest
	res     domain.TradeResult
	err     error
}

func (f *fakeTrades) Buy(_ context.Context, user string, req domain.TradeRequest) (domain.TradeResult, error) {
	f.gotUser, f.gotReq = user, req
	return f.res, f.err
}

func (f *fakeTrades) Sell(ctx context.Context, user string, req domain.TradeRequest) (domain.TradeResult, error) {
	return f.Buy(ctx, user, req)
}

type fakeMarkets struct {
	quotes  []domain.MarketQuote
	history []domain.PricePoint
	gotSym  domain.Symbol
	gotOpts domain.ListOpts
	err     error
}

func (f *fakeMarkets) ListTokens(context.Context) ([]domain.MarketQuote, error) {
	return f.quotes, f.err
}

func (f *fakeMarkets) Snapshot(context.Context) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{Prices: map[domain.Symbol]decimal.Decimal{}}, f.err
}

func (f *fakeMarkets) PriceHistory(_ context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error) {
	f.gotSym, f.gotOpts = sym, opts
	return f.history, f.err
}

type fakePortfolio struct {
	gotFilter domain.TransactionFilter
}

func (f *fakePortfolio) Portfolio(_ context.Context, user string) (domain.Portfolio, error) {
	return domain.Portfolio{UserID: user}, nil
}

func (f *fakePortfolio) TransactionHistory(_ context.Context, _ string, flt domain.TransactionFilter) (domain.TradeHistory, error) {
	f.gotFilter = flt
	return domain.TradeHistory{Trades: []domain.TradeRecord{}}, nil
}

type fakeWallets struct {
	opened   string
	contact  *domain.UserContact
	deposits []decimal.Decimal
}

func (f *fakeWallets) Open(_ context.Context, user string) (domain.Wallet, error) {
	f.opened = user
	return domain.Wallet{ID: 7, UserID: user}, nil
}

func (f *fakeWallets) SaveContact(_ context.Context, c domain.UserContact) error {
	f.contact = &c
	return nil
}

func (f *fakeWallets) RecordDeposit(_ context.Context, user string, amount decimal.Decimal, _ string) (domain.Transaction, error) {
	if user == "" {
		return domain.Transaction{}, domain.NewValidationError("user_id", "is required")
	}
	f.deposits = append(f.deposits, amount)
	return domain.Transaction{ID: 1, UserID: user, Amount: amount, Type: domain.TxDeposit}, nil
}

type seederFunc func(context.Context, []domain.CatalogEntry) ([]domain.MarketQuote, error)

func (f seederFunc) SeedCatalog(ctx context.Context, e []domain.CatalogEntry) ([]domain.MarketQuote, error) {
	return f(ctx, e)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func asUser(r *http.Request, user string) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), user))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTradeHandler_Buy(t *testing.T) {
	svc := &fakeTrades{res: domain.TradeResult{TransactionID: 9, Symbol: "UNILAG"}}
	h := NewTradeHandler(svc, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/trades/buy",
		strings.NewReader(`{"token_id":1,"quantity":"2.5","price":"100"}`))
	rec := httptest.NewRecorder()
	h.Buy(rec, asUser(req, "ada"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada", svc.gotUser)
	assert.Equal(t, int64(1), svc.gotReq.TokenID)
	assert.True(t, svc.gotReq.Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "UNILAG", decodeBody(t, rec)["symbol"])
}

func TestTradeHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "validation",
			err:    domain.NewValidationError("quantity", "must be positive"),
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "quantity", body["field"])
			},
		},
		{
			name:   "stale price",
			err:    &domain.StalePriceError{Submitted: decimal.NewFromInt(100), Current: decimal.NewFromInt(110)},
			status: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "110", body["current_price"])
			},
		},
		{
			name:   "insufficient funds",
			err:    &domain.InsufficientFundsError{Required: decimal.NewFromInt(10), Available: decimal.NewFromInt(1)},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "insufficient holding",
			err:    &domain.InsufficientHoldingError{Symbol: "UI", Requested: decimal.NewFromInt(2), Held: decimal.NewFromInt(1)},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "not found",
			err:    &domain.NotFoundError{Entity: "token", Key: "42"},
			status: http.StatusNotFound,
		},
		{
			name:   "internal",
			err:    errors.New("connection reset"),
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "internal server error", body["error"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTradeHandler(&fakeTrades{err: tt.err}, quietLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/trades/sell",
				strings.NewReader(`{"token_id":1,"quantity":"1","price":"100"}`))
			rec := httptest.NewRecorder()
			h.Sell(rec, asUser(req, "ada"))

			require.Equal(t, tt.status, rec.Code)
			if tt.check != nil {
				tt.check(t, decodeBody(t, rec))
			}
		})
	}
}

func TestTradeHandler_RejectsBadRequests(t *testing.T) {
	h := NewTradeHandler(&fakeTrades{}, quietLogger())

	t.Run("no identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/trades/buy", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.Buy(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/trades/buy", strings.NewReader(`{"token_id":1,"side":"buy"}`))
		rec := httptest.NewRecorder()
		h.Buy(rec, asUser(req, "ada"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/trades/buy", strings.NewReader(``))
		rec := httptest.NewRecorder()
		h.Buy(rec, asUser(req, "ada"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMarketHandler_PriceHistory(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &fakeMarkets{history: []domain.PricePoint{{
		Symbol:     "UNILAG",
		Price:      decimal.RequireFromString("101.5"),
		Volatility: decimal.RequireFromString("0.02"),
		Sentiment:  domain.SentimentBullish,
		Source:     domain.PriceSourceTrade,
		Time:       at,
	}}}
	h := NewMarketHandler(svc, quietLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tokens/{symbol}/history", h.PriceHistory)

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/unilag/history?limit=5000&since=2025-03-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Symbol("UNILAG"), svc.gotSym)
	assert.Equal(t, 1000, svc.gotOpts.Limit)
	require.NotNil(t, svc.gotOpts.Since)
	assert.Nil(t, svc.gotOpts.Until)

	var body historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Points, 1)
	assert.Equal(t, "101.5", body.Points[0].Price)
	assert.Equal(t, "2025-03-01T10:00:00.000Z", body.Points[0].Time)
}

func TestMarketHandler_BadQuery(t *testing.T) {
	h := NewMarketHandler(&fakeMarkets{}, quietLogger())
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1", "since=yesterday"} {
		req := httptest.NewRequest(http.MethodGet, "/api/tokens/UI/history?"+q, nil)
		req.SetPathValue("symbol", "UI")
		rec := httptest.NewRecorder()
		h.PriceHistory(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMarketHandler_ListTokens(t *testing.T) {
	h := NewMarketHandler(&fakeMarkets{quotes: []domain.MarketQuote{{TokenID: 1, Symbol: "UI", Price: decimal.NewFromInt(90)}}}, quietLogger())
	rec := httptest.NewRecorder()
	h.ListTokens(rec, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body listTokensResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tokens, 1)
	assert.True(t, body.Tokens[0].Price.Equal(decimal.NewFromInt(90)))
}

func TestPortfolioHandler_TransactionsFilter(t *testing.T) {
	svc := &fakePortfolio{}
	h := NewPortfolioHandler(svc, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?type=buy,DEPOSIT&limit=20&offset=40", nil)
	rec := httptest.NewRecorder()
	h.Transactions(rec, asUser(req, "ada"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.TransactionType{domain.TxBuy, domain.TxDeposit}, svc.gotFilter.Types)
	assert.Equal(t, 20, svc.gotFilter.Limit)
	assert.Equal(t, 40, svc.gotFilter.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/transactions?type=REFUND", nil)
	rec = httptest.NewRecorder()
	h.Transactions(rec, asUser(req, "ada"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletHandler_Open(t *testing.T) {
	svc := &fakeWallets{}
	h := NewWalletHandler(svc, quietLogger())

	rec := httptest.NewRecorder()
	h.Open(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/wallet", nil), "ada"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada", svc.opened)
	assert.Nil(t, svc.contact)

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"email":"ada@example.com","first_name":"Ada"}`)
	h.Open(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/wallet", body), "ada"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.contact)
	assert.Equal(t, "ada@example.com", svc.contact.Email)

	rec = httptest.NewRecorder()
	body = strings.NewReader(`{"email":"not-an-address"}`)
	h.Open(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/wallet", body), "ada"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletHandler_Deposit(t *testing.T) {
	svc := &fakeWallets{}
	h := NewWalletHandler(svc, quietLogger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"user_id":"ada","amount":"5000","reference":"psk_1"}`)
	h.Deposit(rec, httptest.NewRequest(http.MethodPost, "/api/admin/deposits", body))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.deposits, 1)
	assert.True(t, svc.deposits[0].Equal(decimal.NewFromInt(5000)))

	rec = httptest.NewRecorder()
	h.Deposit(rec, httptest.NewRequest(http.MethodPost, "/api/admin/deposits", strings.NewReader(`{"amount":"1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_SeedTokens(t *testing.T) {
	seeded := 0
	h := NewAdminHandler(seederFunc(func(_ context.Context, e []domain.CatalogEntry) ([]domain.MarketQuote, error) {
		if seeded > 0 {
			return nil, domain.ErrAlreadyExists
		}
		seeded = len(e)
		return []domain.MarketQuote{{Symbol: "UNILAG"}}, nil
	}), []domain.CatalogEntry{{Symbol: "UNILAG"}}, quietLogger())

	rec := httptest.NewRecorder()
	h.SeedTokens(rec, httptest.NewRequest(http.MethodPost, "/api/admin/tokens/seed", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, seeded)

	rec = httptest.NewRecorder()
	h.SeedTokens(rec, httptest.NewRequest(http.MethodPost, "/api/admin/tokens/seed", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"postgres": up}, quietLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"postgres": up, "redis": down}, quietLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["dependencies"].(map[string]any)["redis"])
}
