package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

// CatalogSeeder loads the initial token catalog.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, entries []domain.CatalogEntry) ([]domain.MarketQuote, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	seeder  CatalogSeeder
	catalog []domain.CatalogEntry
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler that seeds catalog.
func NewAdminHandler(seeder CatalogSeeder, catalog []domain.CatalogEntry, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{seeder: seeder, catalog: catalog, logger: logger}
}

// SeedTokens creates the catalog tokens. It answers 409 once any token exists.
// POST /api/admin/tokens/seed
func (h *AdminHandler) SeedTokens(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.seeder.SeedCatalog(r.Context(), h.catalog)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, listTokensResponse{Tokens: quotes})
}
