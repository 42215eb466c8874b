package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/pmrag-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token for callers
// that cannot set Authorization, such as some webhook relays.
const apiKeyHeader = "X-API-Key"

// authMiddleware enforces the API key on next. An empty apiKey disables the
// check; New warns about that once at startup.
//
// Callers present the key as either
//
//	Authorization: Bearer <apiKey>
//	X-API-Key: <apiKey>
//
// Failures get a 401 JSON error and a WWW-Authenticate challenge. Keys are
// compared in constant time and never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := presentedKey(r)
		if token == "" {
			logging.FromContext(r.Context()).Warn("auth: no credentials", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="pmrag"`)
			respondError(w, r, http.StatusUnauthorized, "authorization required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logging.FromContext(r.Context()).Warn("auth: invalid credentials", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="pmrag", error="invalid_token"`)
			respondError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// presentedKey returns the Bearer token, else the X-API-Key value, else "".
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}
