// Package auth enforces the simulator's single shared bearer token and
// applies the permissive CORS headers the front end promises browser SDKs.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"progressdb/pkg/apperr"
	"progressdb/pkg/logger"
)

// Token holds the single shared bearer token configured at startup.
type Token struct {
	value string
}

// New builds a Token checker for the given shared secret.
func New(token string) Token {
	return Token{value: token}
}

// Check extracts the caller's bearer token from the Authorization header or
// the token query parameter and compares it in constant time against the
// configured secret. WebSocket upgrades typically use the query form since
// browsers cannot set arbitrary headers on the upgrade request.
func (t Token) Check(r *http.Request) error {
	got := fromHeader(r)
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(t.value)) != 1 {
		return apperr.New(apperr.Unauthorized, "missing or invalid bearer token")
	}
	return nil
}

func fromHeader(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// CORS sets the permissive cross-origin headers spec.md §6 requires so
// browser-based SDKs can call the API directly, and short-circuits
// preflight OPTIONS requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware wraps next with token authentication. Requests whose path is
// in openPaths bypass the check for every method (used for health probes
// and metrics).
func Middleware(t Token, openPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)
			if openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if err := t.Check(r); err != nil {
				w.WriteHeader(apperr.StatusFor(err))
				logger.Warn("request_rejected", "reason", "unauthorized", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
