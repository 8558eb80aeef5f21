package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// TradeService executes trades for an authenticated user.
type TradeService interface {
	Buy(ctx context.Context, userID string, req domain.TradeRequest) (domain.TradeResult, error)
	Sell(ctx context.Context, userID string, req domain.TradeRequest) (domain.TradeResult, error)
}

// TradeHandler serves the buy and sell endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// Buy executes a market buy at the quoted price.
// POST /api/trades/buy {"token_id":1,"quantity":"10","price":"100"}
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.trades.Buy)
}

// Sell executes a market sell at the quoted price.
// POST /api/trades/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.trades.Sell)
}

func (h *TradeHandler) execute(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, string, domain.TradeRequest) (domain.TradeResult, error),
) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	var req domain.TradeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	res, err := fn(r.Context(), user, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
