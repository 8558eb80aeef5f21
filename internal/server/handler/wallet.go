package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// WalletService opens wallets, stores contact details and posts deposits.
type WalletService interface {
	Open(ctx context.Context, userID string) (domain.Wallet, error)
	SaveContact(ctx context.Context, c domain.UserContact) error
	RecordDeposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (domain.Transaction, error)
}

// WalletHandler serves wallet endpoints.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger}
}

type openWalletRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// Open creates the caller's wallet if needed and records where to send
// notifications. The body is optional.
// POST /api/wallet {"email":"ada@example.com","first_name":"Ada"}
func (h *WalletHandler) Open(w http.ResponseWriter, r *http.Request) {
	user, ok := userID(w, r)
	if !ok {
		return
	}
	var req openWalletRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeServiceError(w, r, h.logger, domain.NewValidationError("email", "is not a valid address"))
			return
		}
	}

	wallet, err := h.wallets.Open(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.Email != "" {
		c := domain.UserContact{UserID: user, Email: req.Email, FirstName: req.FirstName}
		if err := h.wallets.SaveContact(r.Context(), c); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, wallet)
}

type depositRequest struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// Deposit posts a deposit confirmed by the payment gateway.
// POST /api/admin/deposits {"user_id":"ada","amount":"5000","reference":"psk_123"}
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	tx, err := h.wallets.RecordDeposit(r.Context(), req.UserID, req.Amount, req.Reference)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}
