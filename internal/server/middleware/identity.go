package middleware

import (
	"context"
	"net/http"
	"strings"
)

// UserIDHeader carries the authenticated user id set by the upstream auth
// gateway.
const UserIDHeader = "X-User-ID"

type ctxKey struct{}

// Identity copies the user id from UserIDHeader into the request context.
// Requests without one pass through; handlers that need a user reject them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			r = r.WithContext(WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// WithUserID returns a context carrying id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserID returns the user id in ctx, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
