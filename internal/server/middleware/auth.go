package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// APIKeyHeader carries a static key as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// publicPaths is a set of exact paths plus subtree prefixes (entries ending
// in "/").
type publicPaths struct {
	exact    map[string]bool
	prefixes []string
}

func newPublicPaths(paths []string) publicPaths {
	p := publicPaths{exact: make(map[string]bool, len(paths))}
	for _, path := range paths {
		if strings.HasSuffix(path, "/") {
			p.prefixes = append(p.prefixes, path)
			continue
		}
		p.exact[path] = true
	}
	return p
}

func (p publicPaths) match(path string) bool {
	if p.exact[path] {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Auth rejects requests whose bearer token or X-API-Key does not equal key.
// An empty key disables the check. Paths in public skip it.
func Auth(key string, public ...string) func(http.Handler) http.Handler {
	open := newPublicPaths(public)
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || open.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			got := credential(r)
			switch {
			case got == "":
				unauthorized(w, "missing authentication token")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				unauthorized(w, "invalid authentication token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// credential returns the bearer token, falling back to X-API-Key.
func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
