package handlers

import (
	"net/http"

	"github.com/sellerdesk/edgeguard/internal/middleware"
)

// Operational paths.
const (
	PathHealth         = "/healthz"
	PathPatterns       = "/-/patterns"
	PathPatternsReload = "/-/patterns/reload"
	opsPrefix          = "/-/"
)

// Router builds the edge mux. Operational endpoints are answered locally;
// everything else goes to app. State-changing operational requests require
// adminToken when it is set.
func Router(h *Handler, app http.Handler, adminToken string) http.Handler {
	ops := middleware.Chain(
		middleware.SecurityHeaders,
		middleware.AdminToken(adminToken, h.log),
	)

	mux := http.NewServeMux()
	mux.Handle("GET "+PathHealth, ops(http.HandlerFunc(h.HandleHealth)))
	mux.Handle("GET "+PathPatterns, ops(http.HandlerFunc(h.HandlePatterns)))
	mux.Handle("POST "+PathPatternsReload, ops(http.HandlerFunc(h.HandleReload)))
	mux.Handle(PathHealth, ops(http.HandlerFunc(h.HandleMethodNotAllowed)))
	// The operational namespace is reserved; unknown paths never reach the app.
	mux.Handle(opsPrefix, ops(http.HandlerFunc(h.HandleNotFound)))
	mux.Handle("/", app)
	return mux
}
