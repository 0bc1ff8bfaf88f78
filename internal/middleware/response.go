package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sellerdesk/edgeguard/pkg/version"
)

// errorResponse is the JSON envelope for errors produced by the edge itself.
type errorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Version   string `json:"version"`
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	resp := errorResponse{
		Status:    "error",
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
		Version:   version.Full(),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
