package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves health, readiness and the OpenAPI document.
type SystemHandler struct {
	db     Pinger
	doc    func() (*openapi3.T, error)
	logger *slog.Logger

	specOnce sync.Once
	specJSON []byte
	specErr  error
}

// NewSystemHandler creates a new SystemHandler. doc is built on first use.
func NewSystemHandler(db Pinger, doc func() (*openapi3.T, error), logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{db: db, doc: doc, logger: logger}
}

// Health reports that the process is serving.
// GET /api/v1/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports whether the run store is reachable.
// GET /readyz
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// OpenAPI serves the OpenAPI document.
// GET /openapi.json
func (h *SystemHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	h.specOnce.Do(func() {
		doc, err := h.doc()
		if err != nil {
			h.specErr = err
			return
		}
		h.specJSON, h.specErr = doc.MarshalJSON()
	})
	if h.specErr != nil {
		h.logger.Error("build openapi document", "error", h.specErr)
		writeError(w, http.StatusInternalServerError, "Failed to build OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.specJSON)
}
