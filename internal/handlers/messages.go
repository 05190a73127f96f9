package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/codemist/webai-bridge/internal/adapter"
	"github.com/codemist/webai-bridge/internal/config"
	"github.com/codemist/webai-bridge/internal/upstream"
)

// MessagesRequest is the accepted subset of the Anthropic Messages API
// request body.
type MessagesRequest struct {
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	System    json.RawMessage `json:"system,omitempty"`
	Tools     []Tool          `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

// MessagesHandler serves POST /v1/messages: it flattens the request into a
// single prompt, runs it through the configured web backend and re-emits the
// reply as an Anthropic message or SSE stream.
type MessagesHandler struct {
	config   *config.Manager
	registry *upstream.Registry
	adapter  *adapter.Adapter
	logger   *slog.Logger
}

func NewMessagesHandler(cfg *config.Manager, registry *upstream.Registry, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		config:   cfg,
		registry: registry,
		adapter:  adapter.New(logger),
		logger:   logger,
	}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProtocolError(w, http.StatusMethodNotAllowed, h.adapter, adapter.TargetAnthropic, "invalid_request_error", "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.badRequest(w, "failed to read request body")
		return
	}

	var req MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	if len(req.Messages) == 0 {
		h.badRequest(w, "messages must not be empty")
		return
	}

	prompt, err := buildPrompt(req.System, req.Tools, req.Messages)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	requestID := newRequestID()

	client, backendCfg, err := resolveBackend(h.config.Get(), h.registry, req.Model)
	if err != nil {
		writeProtocolError(w, http.StatusServiceUnavailable, h.adapter, adapter.TargetAnthropic, "api_error", err.Error(), h.logger)
		return
	}

	h.logger.Info("Handling messages request",
		"request_id", requestID,
		"backend", client.Name(),
		"model", req.Model,
		"stream", req.Stream,
		"input_tokens", countInputTokens(prompt, h.logger),
		"tools", len(req.Tools),
	)

	result, err := client.Generate(r.Context(), prompt, upstreamModel(backendCfg, req.Model))
	if err != nil {
		h.logger.Error("Upstream generate failed", "request_id", requestID, "backend", client.Name(), "error", err)

		message := fmt.Sprintf("upstream request failed: %v", err)
		if req.Stream {
			writeErrorStream(w, r, h.adapter, adapter.TargetAnthropic, "api_error", message, h.logger)
		} else {
			writeProtocolError(w, http.StatusBadGateway, h.adapter, adapter.TargetAnthropic, "api_error", message, h.logger)
		}

		return
	}

	result.Model = req.Model
	result.RequestID = requestID

	if req.Stream {
		frames, err := h.adapter.Stream(result, adapter.TargetAnthropic)
		if err != nil {
			writeProtocolError(w, http.StatusInternalServerError, h.adapter, adapter.TargetAnthropic, "api_error", err.Error(), h.logger)
			return
		}

		writeStream(w, r, frames, h.logger)

		return
	}

	message, err := h.adapter.Complete(result, adapter.TargetAnthropic)
	if err != nil {
		writeProtocolError(w, http.StatusInternalServerError, h.adapter, adapter.TargetAnthropic, "api_error", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, message, h.logger)
}

func (h *MessagesHandler) badRequest(w http.ResponseWriter, message string) {
	writeProtocolError(w, http.StatusBadRequest, h.adapter, adapter.TargetAnthropic, "invalid_request_error", message, h.logger)
}

func newRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// resolveBackend picks the upstream client for a request. A model name that
// names a registered backend wins; otherwise the configured default applies,
// falling back to any registered backend.
func resolveBackend(cfg *config.Config, registry *upstream.Registry, model string) (upstream.Client, *config.Backend, error) {
	lower := strings.ToLower(model)

	for _, name := range registry.List() {
		if strings.Contains(lower, name) {
			client, _ := registry.Get(name)
			return client, cfg.Backend(name), nil
		}
	}

	if client, ok := registry.Get(cfg.DefaultBackend); ok {
		return client, cfg.Backend(cfg.DefaultBackend), nil
	}

	names := registry.List()
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no upstream backend configured; add cookie credentials to the config file")
	}

	client, _ := registry.Get(names[0])

	return client, cfg.Backend(names[0]), nil
}

// upstreamModel maps the requested model to the one the backend should see.
// A configured per-backend model overrides whatever the caller asked for.
func upstreamModel(backendCfg *config.Backend, requested string) string {
	if backendCfg != nil && backendCfg.Model != "" {
		return backendCfg.Model
	}

	return requested
}
