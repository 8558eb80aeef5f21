package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// PortfolioService reads a user's holdings and trades.
type PortfolioService interface {
	Portfolio(ctx context.Context, userID string) (domain.Portfolio, error)
	TransactionHistory(ctx context.Context, userID string, f domain.TransactionFilter) (domain.TradeHistory, error)
}

// PortfolioHandler serves the portfolio and transaction history endpoints.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio, logger: logger}
}

// Portfolio returns the caller's valued holdings.
// GET /api/portfolio
func (h *PortfolioHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	p, err := h.portfolio.Portfolio(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Transactions returns the caller's trades, newest first.
// GET /api/transactions?type=BUY,SELL&limit=50&offset=0&since=...&until=...
func (h *PortfolioHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	opts, err := parseListOpts(r, 50, 500)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	types, err := parseTypes(r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	hist, err := h.portfolio.TransactionHistory(r.Context(), user, domain.TransactionFilter{Types: types, ListOpts: opts})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}
