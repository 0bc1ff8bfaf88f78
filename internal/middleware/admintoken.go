package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AdminTokenHeader is the header carrying the operator token.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken returns middleware that requires the operator token on
// state-changing requests. Safe methods (GET, HEAD, OPTIONS) pass through.
// An empty token disables the check.
//
// The token is read from X-Admin-Token or an "Authorization: Bearer" header.
// Query parameters are never accepted since they end up in access logs.
func AdminToken(token string, logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(AdminTokenHeader)
			if presented == "" {
				if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
					presented = strings.TrimSpace(auth[7:])
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", maskIP(r.RemoteAddr)).
					Msg("Rejected admin request with invalid or missing token")
				writeErrorResponse(w, r, http.StatusUnauthorized, "Invalid or missing admin token", logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
