package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/server/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error        string `json:"error"`
	Field        string `json:"field,omitempty"`
	CurrentPrice string `json:"current_price,omitempty"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps a service error onto an HTTP status. Unknown errors
// are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		ve *domain.ValidationError
		sp *domain.StalePriceError
		fe *domain.InsufficientFundsError
		he *domain.InsufficientHoldingError
		se *domain.InsufficientSupplyError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Field: ve.Field})
	case errors.As(err, &sp):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), CurrentPrice: sp.Current.String()})
	case errors.As(err, &fe), errors.As(err, &he), errors.As(err, &se):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &nf), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields and
// trailing data. An empty body leaves dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if dec.More() {
		return domain.NewValidationError("body", "unexpected trailing data")
	}
	return nil
}

// userID returns the authenticated user, writing a 401 when absent.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.UserID(r.Context())
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return id, true
}

// parseListOpts extracts pagination and time range parameters from the query
// string. limit defaults to def and is capped at limitCap.
func parseListOpts(r *http.Request, def, limitCap int) (domain.ListOpts, error) {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: def}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, domain.NewValidationError("limit", "must be a positive integer")
		}
		opts.Limit = min(n, limitCap)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, domain.NewValidationError("offset", "must be a non-negative integer")
		}
		opts.Offset = n
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, domain.NewValidationError(p.name, "must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}
	return opts, nil
}

// parseTypes reads a comma-separated list of transaction types.
func parseTypes(v string) ([]domain.TransactionType, error) {
	if v == "" {
		return nil, nil
	}
	var out []domain.TransactionType
	for _, part := range strings.Split(v, ",") {
		t := domain.TransactionType(strings.ToUpper(strings.TrimSpace(part)))
		if !t.Valid() {
			return nil, domain.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", part))
		}
		out = append(out, t)
	}
	return out, nil
}
