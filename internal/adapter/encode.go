package adapter

import (
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Encoder serializes an abstract event stream into one concrete wire format.
// Frames are produced lazily, one event at a time; nothing is buffered ahead
// of the consumer, so the first frame is available before the last event has
// been looked at.
type Encoder struct {
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns a single-pass, finite sequence of wire-format frames for
// the given target. An unknown target is a programming error and fails
// before the first frame rather than silently defaulting.
func (e *Encoder) Encode(events []Event, target Target) (iter.Seq[string], error) {
	switch target {
	case TargetAnthropic:
		return e.encodeAnthropic(events), nil
	case TargetOpenAI:
		return e.encodeOpenAI(events), nil
	default:
		return nil, fmt.Errorf("unknown target protocol: %q", target)
	}
}

// encodeAnthropic maps every abstract event 1:1 onto an Anthropic Messages
// SSE record. Tool blocks start with an empty input object; the actual
// arguments travel only inside the input_json_delta, mirroring how partial
// tool arguments stream.
func (e *Encoder) encodeAnthropic(events []Event) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, event := range events {
			var frame string

			switch ev := event.(type) {
			case MessageStartEvent:
				frame = FormatSSEEvent("message_start", map[string]any{
					"type": "message_start",
					"message": map[string]any{
						"id":            ev.MessageID,
						"type":          "message",
						"role":          "assistant",
						"content":       []any{},
						"model":         ev.Model,
						"stop_reason":   nil,
						"stop_sequence": nil,
						"usage": map[string]any{
							"input_tokens":  0,
							"output_tokens": 0,
						},
					},
				})
			case BlockStartEvent:
				frame = FormatSSEEvent("content_block_start", map[string]any{
					"type":          "content_block_start",
					"index":         ev.Block.Index,
					"content_block": startContentBlock(ev.Block),
				})
			case BlockDeltaEvent:
				delta := map[string]any{
					"type": "text_delta",
					"text": ev.Content,
				}
				if ev.Block.Kind == BlockKindToolUse {
					delta = map[string]any{
						"type":         "input_json_delta",
						"partial_json": ev.Content,
					}
				}

				frame = FormatSSEEvent("content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": ev.Block.Index,
					"delta": delta,
				})
			case BlockStopEvent:
				frame = FormatSSEEvent("content_block_stop", map[string]any{
					"type":  "content_block_stop",
					"index": ev.Block.Index,
				})
			case MessageDeltaEvent:
				frame = FormatSSEEvent("message_delta", map[string]any{
					"type": "message_delta",
					"delta": map[string]any{
						"stop_reason":   ev.StopReason,
						"stop_sequence": nil,
					},
					"usage": map[string]any{
						"output_tokens": ev.OutputTokens,
					},
				})
			case MessageStopEvent:
				frame = FormatSSEEvent("message_stop", map[string]any{
					"type": "message_stop",
				})
			}

			if frame == "" {
				continue
			}

			if !yield(frame) {
				return
			}
		}
	}
}

// encodeOpenAI emits one chat.completion.chunk per text-block delta and a
// final data: [DONE] sentinel. Tool-call streaming in OpenAI's
// delta.tool_calls shape is an extension point, not implemented; tool blocks
// simply do not appear in this target's stream. The chunk id and created
// timestamp are fixed for the life of one stream.
func (e *Encoder) encodeOpenAI(events []Event) iter.Seq[string] {
	return func(yield func(string) bool) {
		var (
			id      string
			model   string
			created = time.Now().Unix()
		)

		for _, event := range events {
			switch ev := event.(type) {
			case MessageStartEvent:
				id = chatCompletionID(ev.MessageID)
				model = ev.Model
			case BlockDeltaEvent:
				if ev.Block.Kind != BlockKindText {
					continue
				}

				chunk := newChatChunk(id, model, created)
				chunk["choices"] = []any{map[string]any{
					"index": 0,
					"delta": map[string]any{
						"role":    "assistant",
						"content": ev.Content,
					},
					"finish_reason": nil,
				}}

				if !yield(formatDataFrame(chunk)) {
					return
				}
			case MessageDeltaEvent:
				chunk := newChatChunk(id, model, created)
				chunk["choices"] = []any{map[string]any{
					"index":         0,
					"delta":         map[string]any{},
					"finish_reason": openAIFinishReason(ev.StopReason),
				}}

				if !yield(formatDataFrame(chunk)) {
					return
				}
			case MessageStopEvent:
				if !yield("data: [DONE]\n\n") {
					return
				}
			}
		}
	}
}

// FormatSSEEvent formats data as a named Server-Sent Event record.
func FormatSSEEvent(eventType string, data any) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		// Marshalling maps of JSON-safe values cannot fail; emit a
		// parseable error record rather than breaking the stream.
		return "event: error\ndata: {\"error\":\"failed to marshal data\"}\n\n"
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, jsonData)
}

func formatDataFrame(data any) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "data: {\"error\":\"failed to marshal data\"}\n\n"
	}

	return fmt.Sprintf("data: %s\n\n", jsonData)
}

func startContentBlock(block Block) map[string]any {
	if block.Kind == BlockKindToolUse {
		return map[string]any{
			"type":  "tool_use",
			"id":    block.ID,
			"name":  block.Name,
			"input": map[string]any{},
		}
	}

	return map[string]any{
		"type": "text",
		"text": "",
	}
}

func newChatChunk(id, model string, created int64) map[string]any {
	return map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": created,
		"model":   model,
	}
}

func chatCompletionID(messageID string) string {
	return "chatcmpl-" + strings.TrimPrefix(messageID, "msg_")
}

func openAIFinishReason(stopReason string) string {
	if stopReason == StopReasonToolUse {
		return "tool_calls"
	}

	return "stop"
}
