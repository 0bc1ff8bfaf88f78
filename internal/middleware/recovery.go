// Package middleware provides the HTTP middleware that wraps the edge handler.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Recovery returns middleware that recovers from panics in later stages,
// logs them with a stack trace, and answers 500.
func Recovery(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error().
						Interface("error", err).
						Str("stack", string(debug.Stack())).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("requestId", RequestIDFromContext(r.Context())).
						Msg("Panic recovered")

					writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
