package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// SignatureHeader carries base64(HMAC-SHA256(secret, timestamp+method+path+body)).
	SignatureHeader = "X-Signature"
	// SignatureTimestampHeader carries the Unix time the request was signed.
	SignatureTimestampHeader = "X-Signature-Timestamp"

	signatureMaxSkew  = 5 * time.Minute
	signatureMaxBytes = 64 << 10
)

// Sign returns the signature of a request made at ts.
func Sign(secret []byte, ts int64, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10) + method + path))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Signature routes requests that carry SignatureHeader to signed after
// verifying them, and every other request to unsigned. Signatures older or
// newer than five minutes are rejected. An empty secret sends everything to
// unsigned.
func Signature(secret string, clock clockwork.Clock) func(signed, unsigned http.Handler) http.Handler {
	key := []byte(secret)
	return func(signed, unsigned http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(SignatureHeader)
			if secret == "" || sig == "" {
				unsigned.ServeHTTP(w, r)
				return
			}

			ts, err := strconv.ParseInt(r.Header.Get(SignatureTimestampHeader), 10, 64)
			if err != nil {
				unauthorized(w, "missing or invalid signature timestamp")
				return
			}
			if skew := clock.Now().Sub(time.Unix(ts, 0)); skew > signatureMaxSkew || skew < -signatureMaxSkew {
				unauthorized(w, "signature expired")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, signatureMaxBytes))
			if err != nil {
				unauthorized(w, "unreadable body")
				return
			}
			want := Sign(key, ts, r.Method, r.URL.Path, body)
			if !hmac.Equal([]byte(sig), []byte(want)) {
				unauthorized(w, "invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			signed.ServeHTTP(w, r)
		})
	}
}
