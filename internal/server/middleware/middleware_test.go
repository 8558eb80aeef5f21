package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, UserID(r.Context()))
	})
}

func TestIdentity(t *testing.T) {
	h := Identity(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "  ada ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "ada", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Body.String())
}

func TestAuth_PublicPrefixes(t *testing.T) {
	h := Auth("k", "/api/health", "/api/admin/")(echoUser())

	for path, want := range map[string]int{
		"/api/health":         http.StatusOK,
		"/api/health/extra":   http.StatusUnauthorized,
		"/api/admin/deposits": http.StatusOK,
		"/api/tokens":         http.StatusUnauthorized,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("keys by user then ip", func(t *testing.T) {
		lim := &stubLimiter{allowed: true}
		h := Identity(RateLimit(lim, "trade", 5, time.Minute, logger)(echoUser()))

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(UserIDHeader, "ada")
		h.ServeHTTP(httptest.NewRecorder(), req)

		req = httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.7:5123"
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, []string{"trade:ada", "trade:ip:10.0.0.7"}, lim.keys)
	})

	t.Run("rejects over limit", func(t *testing.T) {
		h := RateLimit(&stubLimiter{}, "trade", 5, 90*time.Second, logger)(echoUser())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	})

	t.Run("fails open", func(t *testing.T) {
		h := RateLimit(&stubLimiter{err: errors.New("redis down")}, "trade", 5, time.Minute, logger)(echoUser())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		h := RateLimit(nil, "trade", 5, time.Minute, logger)(echoUser())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSignature(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	secret := "gateway-secret"

	signed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		io.WriteString(w, "signed:"+string(body))
	})
	unsigned := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "unsigned")
	})
	h := Signature(secret, clock)(signed, unsigned)

	body := `{"user_id":"ada","amount":"5000"}`
	newReq := func(ts int64, sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/deposits", strings.NewReader(body))
		req.Header.Set(SignatureTimestampHeader, strconv.FormatInt(ts, 10))
		req.Header.Set(SignatureHeader, sig)
		return req
	}
	now := clock.Now().Unix()
	good := Sign([]byte(secret), now, http.MethodPost, "/api/admin/deposits", []byte(body))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newReq(now, good))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "signed:"+body, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newReq(now, Sign([]byte("other"), now, http.MethodPost, "/api/admin/deposits", []byte(body))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	old := now - int64((10 * time.Minute).Seconds())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newReq(old, Sign([]byte(secret), old, http.MethodPost, "/api/admin/deposits", []byte(body))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/deposits", strings.NewReader(body)))
	assert.Equal(t, "unsigned", rec.Body.String())

	rec = httptest.NewRecorder()
	Signature("", clock)(signed, unsigned).ServeHTTP(rec, newReq(now, good))
	assert.Equal(t, "unsigned", rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://App.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/trades/buy", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), SignatureHeader)
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Vary"))
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, requestLevel("/api/trades/buy", http.StatusInternalServerError))
	assert.Equal(t, slog.LevelWarn, requestLevel("/api/trades/buy", http.StatusConflict))
	assert.Equal(t, slog.LevelError, requestLevel("/api/health", http.StatusServiceUnavailable))
	assert.Equal(t, slog.LevelDebug, requestLevel("/metrics", http.StatusOK))
	assert.Equal(t, slog.LevelInfo, requestLevel("/api/tokens", http.StatusOK))
}

func TestLogging_RecordsStatusAndBytes(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, "nope")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/trades/sell", nil))
	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"status":422`)
	assert.Contains(t, out, `"bytes":4`)
}
