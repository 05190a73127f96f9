// Package adapter reshapes one opaque upstream completion into OpenAI- or
// Anthropic-compatible wire output: a synthesized SSE stream with a correct
// content-block lifecycle, or a single non-streaming response object. Tool
// invocations embedded in the completion text via the [[TOOL_CALL: ...]]
// marker grammar are extracted into proper tool_use blocks along the way.
package adapter

import (
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Adapter orchestrates extraction, sequencing and encoding for one request
// at a time. It holds no per-request state and is safe for concurrent use.
type Adapter struct {
	logger    *slog.Logger
	extractor *Extractor
	sequencer *Sequencer
	encoder   *Encoder
	assembler *Assembler
}

func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger:    logger,
		extractor: NewExtractor(logger),
		sequencer: NewSequencer(),
		encoder:   NewEncoder(),
		assembler: NewAssembler(),
	}
}

// Events runs extraction and sequencing only, exposing the protocol-neutral
// event stream for a completion.
func (a *Adapter) Events(result CompletionResult) []Event {
	return a.sequencer.Sequence(result, a.extractor.Extract(result.Text))
}

// Stream returns the completion as a lazy, single-pass sequence of
// wire-format frames for the requested target.
func (a *Adapter) Stream(result CompletionResult, target Target) (iter.Seq[string], error) {
	return a.encoder.Encode(a.Events(result), target)
}

// Complete returns the completion as a single non-streaming response object
// for the requested target.
func (a *Adapter) Complete(result CompletionResult, target Target) (map[string]any, error) {
	return a.assembler.Assemble(a.Events(result), target)
}

// ErrorObject renders an upstream failure as a parseable error body in the
// requested protocol's shape, so callers never see a bare 500 body.
func (a *Adapter) ErrorObject(target Target, errType, message string) map[string]any {
	if target == TargetAnthropic {
		return map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    errType,
				"message": message,
			},
		}
	}

	return map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	}
}

// ErrorFrames renders an upstream failure as a short, well-terminated stream
// in the requested protocol's framing.
func (a *Adapter) ErrorFrames(target Target, errType, message string) []string {
	if target == TargetAnthropic {
		return []string{FormatSSEEvent("error", a.ErrorObject(target, errType, message))}
	}

	chunk := newChatChunk("chatcmpl-error-"+uuid.NewString()[:8], "", time.Now().Unix())
	chunk["choices"] = []any{map[string]any{
		"index": 0,
		"delta": map[string]any{
			"content": fmt.Sprintf("[ERROR: %s]", message),
		},
		"finish_reason": "error",
	}}

	return []string{formatDataFrame(chunk), "data: [DONE]\n\n"}
}
