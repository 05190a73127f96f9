package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/codemist/webai-bridge/internal/upstream"
)

type HealthHandler struct {
	registry *upstream.Registry
	logger   *slog.Logger
}

func NewHealthHandler(registry *upstream.Registry, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	payload := map[string]any{
		"status":   "ok",
		"backends": h.registry.List(),
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to write health check response", "error", err)
	}
}
