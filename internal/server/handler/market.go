package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	ListTokens(ctx context.Context) ([]domain.MarketQuote, error)
	Snapshot(ctx context.Context) (domain.MarketSnapshot, error)
	PriceHistory(ctx context.Context, sym domain.Symbol, opts domain.ListOpts) ([]domain.PricePoint, error)
}

// MarketHandler serves the public market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listTokensResponse struct {
	Tokens []domain.MarketQuote `json:"tokens"`
}

// ListTokens returns a quote for every token.
// GET /api/tokens
func (h *MarketHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.markets.ListTokens(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listTokensResponse{Tokens: quotes})
}

// Snapshot returns all prices plus the trend lists.
// GET /api/market
func (h *MarketHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.markets.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// pricePointJSON is the wire form of a history entry.
type pricePointJSON struct {
	Price      string `json:"price"`
	Volatility string `json:"volatility"`
	Sentiment  string `json:"sentiment"`
	Source     string `json:"source"`
	Time       string `json:"time"`
}

type historyResponse struct {
	Symbol domain.Symbol    `json:"symbol"`
	Points []pricePointJSON `json:"points"`
}

// PriceHistory returns recorded prices of one token, newest first.
// GET /api/tokens/{symbol}/history?limit=100&since=...&until=...
func (h *MarketHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	sym := domain.NewSymbol(r.PathValue("symbol"))
	opts, err := parseListOpts(r, 100, 1000)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	points, err := h.markets.PriceHistory(r.Context(), sym, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := historyResponse{Symbol: sym, Points: make([]pricePointJSON, len(points))}
	for i, p := range points {
		out.Points[i] = pricePointJSON{
			Price:      p.Price.String(),
			Volatility: p.Volatility.String(),
			Sentiment:  string(p.Sentiment),
			Source:     string(p.Source),
			Time:       p.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
