// Package handlers provides the edge's operational HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sellerdesk/edgeguard/internal/patterns"
	"github.com/sellerdesk/edgeguard/pkg/version"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// PatternStore is the view of the pattern manager the handlers need.
// *patterns.Manager satisfies it.
type PatternStore interface {
	Current() *patterns.Set
	Stats() patterns.ReloadStats
	Reload() error
	HasExternalPath() bool
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PatternsResponse describes the active pattern set.
type PatternsResponse struct {
	Status         string               `json:"status"`
	Version        string               `json:"version"`
	Patterns       int                  `json:"patterns"`
	URLPatterns    int                  `json:"urlPatterns"`
	HeaderPatterns int                  `json:"headerPatterns"`
	Reload         patterns.ReloadStats `json:"reload"`
}

// ErrorResponse is returned for failed operations.
type ErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	StartTime int64  `json:"startTimestamp"`
	EndTime   int64  `json:"endTimestamp"`
	Version   string `json:"version"`
}

// Handler serves the operational endpoints.
type Handler struct {
	patterns PatternStore
	log      zerolog.Logger
}

// New creates a new Handler.
func New(store PatternStore, logger zerolog.Logger) *Handler {
	return &Handler{
		patterns: store,
		log:      logger.With().Str("component", "handlers").Logger(),
	}
}

// HandleHealth reports liveness and the build version.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:  StatusOK,
		Version: version.Full(),
	})
}

// HandlePatterns reports the active pattern set and reload statistics.
func (h *Handler) HandlePatterns(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.patternsResponse())
}

// HandleReload reloads the external pattern file. A failed reload keeps the
// active set and answers 422 with the parse error.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if !h.patterns.HasExternalPath() {
		h.writeErrorWithStatus(w, http.StatusConflict, patterns.ErrNoExternalPath.Error(), startTime)
		return
	}

	if err := h.patterns.Reload(); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, patterns.ErrNoExternalPath) {
			status = http.StatusConflict
		}
		h.log.Warn().Err(err).Msg("Manual pattern reload failed")
		h.writeErrorWithStatus(w, status, err.Error(), startTime)
		return
	}

	resp := h.patternsResponse()
	h.log.Info().
		Str("version", resp.Version).
		Int("patterns", resp.Patterns).
		Msg("Pattern set reloaded on request")
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", time.Now())
}

// HandleNotFound handles requests to unknown operational paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", time.Now())
}

func (h *Handler) patternsResponse() PatternsResponse {
	resp := PatternsResponse{
		Status: StatusOK,
		Reload: h.patterns.Stats(),
	}
	if set := h.patterns.Current(); set != nil {
		resp.Version = set.Version()
		resp.Patterns = set.Len()
		resp.URLPatterns = set.URLCount()
		resp.HeaderPatterns = set.HeaderCount()
	}
	return resp
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := ErrorResponse{
		Status:    StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}
