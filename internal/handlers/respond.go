package handlers

import (
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"

	"github.com/codemist/webai-bridge/internal/adapter"
)

// writeJSON renders a JSON body; encode failures are logged, not surfaced,
// since the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to write JSON response", "error", err)
	}
}

// writeProtocolError renders an error object in the caller's protocol shape.
func writeProtocolError(w http.ResponseWriter, status int, a *adapter.Adapter, target adapter.Target, errType, message string, logger *slog.Logger) {
	writeJSON(w, status, a.ErrorObject(target, errType, message), logger)
}

// writeErrorStream renders an error as a short, well-terminated SSE stream.
func writeErrorStream(w http.ResponseWriter, r *http.Request, a *adapter.Adapter, target adapter.Target, errType, message string, logger *slog.Logger) {
	writeStream(w, r, slices.Values(a.ErrorFrames(target, errType, message)), logger)
}

// writeStream drains the frame iterator onto the wire, flushing after every
// frame. Breaking out of the loop abandons the iterator, so a client that
// disconnects mid-stream stops the encoding work too.
func writeStream(w http.ResponseWriter, r *http.Request, frames iter.Seq[string], logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for frame := range frames {
		if r.Context().Err() != nil {
			logger.Debug("Client disconnected mid-stream")
			return
		}

		if _, err := io.WriteString(w, frame); err != nil {
			logger.Debug("Stream write failed", "error", err)
			return
		}

		if canFlush {
			flusher.Flush()
		}
	}
}
