package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codemist/webai-bridge/internal/adapter"
	"github.com/codemist/webai-bridge/internal/config"
	"github.com/codemist/webai-bridge/internal/upstream"
)

// ChatRequest is the accepted subset of the OpenAI chat completions request
// body. Message content may be a plain string or an array of content parts.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// ChatHandler serves POST /v1/chat/completions in front of the same web
// backends as the messages endpoint.
type ChatHandler struct {
	config   *config.Manager
	registry *upstream.Registry
	adapter  *adapter.Adapter
	logger   *slog.Logger
}

func NewChatHandler(cfg *config.Manager, registry *upstream.Registry, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		config:   cfg,
		registry: registry,
		adapter:  adapter.New(logger),
		logger:   logger,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeProtocolError(w, http.StatusMethodNotAllowed, h.adapter, adapter.TargetOpenAI, "invalid_request_error", "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.badRequest(w, "failed to read request body")
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	if len(req.Messages) == 0 {
		h.badRequest(w, "messages must not be empty")
		return
	}

	prompt := chatTranscript(req.Messages)
	requestID := newRequestID()

	client, backendCfg, err := resolveBackend(h.config.Get(), h.registry, req.Model)
	if err != nil {
		writeProtocolError(w, http.StatusServiceUnavailable, h.adapter, adapter.TargetOpenAI, "api_error", err.Error(), h.logger)
		return
	}

	h.logger.Info("Handling chat completions request",
		"request_id", requestID,
		"backend", client.Name(),
		"model", req.Model,
		"stream", req.Stream,
		"input_tokens", countInputTokens(prompt, h.logger),
	)

	result, err := client.Generate(r.Context(), prompt, upstreamModel(backendCfg, req.Model))
	if err != nil {
		h.logger.Error("Upstream generate failed", "request_id", requestID, "backend", client.Name(), "error", err)

		message := fmt.Sprintf("upstream request failed: %v", err)
		if req.Stream {
			writeErrorStream(w, r, h.adapter, adapter.TargetOpenAI, "api_error", message, h.logger)
		} else {
			writeProtocolError(w, http.StatusBadGateway, h.adapter, adapter.TargetOpenAI, "api_error", message, h.logger)
		}

		return
	}

	result.Model = req.Model
	result.RequestID = requestID

	if req.Stream {
		frames, err := h.adapter.Stream(result, adapter.TargetOpenAI)
		if err != nil {
			writeProtocolError(w, http.StatusInternalServerError, h.adapter, adapter.TargetOpenAI, "api_error", err.Error(), h.logger)
			return
		}

		writeStream(w, r, frames, h.logger)

		return
	}

	completion, err := h.adapter.Complete(result, adapter.TargetOpenAI)
	if err != nil {
		writeProtocolError(w, http.StatusInternalServerError, h.adapter, adapter.TargetOpenAI, "api_error", err.Error(), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, completion, h.logger)
}

func (h *ChatHandler) badRequest(w http.ResponseWriter, message string) {
	writeProtocolError(w, http.StatusBadRequest, h.adapter, adapter.TargetOpenAI, "invalid_request_error", message, h.logger)
}

// chatTranscript flattens OpenAI-style messages into the role-prefixed
// prompt the web backends accept. Content parts other than text are dropped.
func chatTranscript(messages []Message) string {
	var parts []string

	for _, msg := range messages {
		role := capitalize(msg.Role)

		var text string
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			parts = append(parts, fmt.Sprintf("%s: %s", role, text))
			continue
		}

		var blocks []ContentBlock
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}

		texts := make([]string, 0, len(blocks))

		for _, block := range blocks {
			if block.Type == "text" {
				texts = append(texts, block.Text)
			}
		}

		parts = append(parts, fmt.Sprintf("%s: %s", role, strings.Join(texts, "\n")))
	}

	return strings.Join(parts, "\n\n")
}
