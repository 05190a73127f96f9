package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Assembler folds a complete event stream into a single non-streaming
// response object for callers that did not request streaming.
type Assembler struct {
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble builds the target protocol's non-streaming response shape.
// OpenAI gets a flat message.content string of the text blocks; tool blocks
// are dropped from that field, matching the streaming target's behavior.
// Anthropic gets one content element per closed block.
func (a *Assembler) Assemble(events []Event, target Target) (map[string]any, error) {
	switch target {
	case TargetAnthropic:
		return a.assembleAnthropic(events), nil
	case TargetOpenAI:
		return a.assembleOpenAI(events), nil
	default:
		return nil, fmt.Errorf("unknown target protocol: %q", target)
	}
}

func (a *Assembler) assembleAnthropic(events []Event) map[string]any {
	var (
		messageID  string
		model      string
		stopReason = StopReasonEndTurn
		usage      = map[string]any{"input_tokens": 0, "output_tokens": 0}
		content    = []any{}

		current Block
		deltas  strings.Builder
	)

	for _, event := range events {
		switch ev := event.(type) {
		case MessageStartEvent:
			messageID = ev.MessageID
			model = ev.Model
		case BlockStartEvent:
			current = ev.Block
			deltas.Reset()
		case BlockDeltaEvent:
			deltas.WriteString(ev.Content)
		case BlockStopEvent:
			content = append(content, closedContentBlock(current, deltas.String()))
		case MessageDeltaEvent:
			stopReason = ev.StopReason
			usage["output_tokens"] = ev.OutputTokens
		}
	}

	return map[string]any{
		"id":            messageID,
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       content,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage":         usage,
	}
}

func (a *Assembler) assembleOpenAI(events []Event) map[string]any {
	var (
		id           string
		model        string
		stopReason   = StopReasonEndTurn
		outputTokens int
		text         strings.Builder
	)

	for _, event := range events {
		switch ev := event.(type) {
		case MessageStartEvent:
			id = chatCompletionID(ev.MessageID)
			model = ev.Model
		case BlockDeltaEvent:
			if ev.Block.Kind == BlockKindText {
				text.WriteString(ev.Content)
			}
		case MessageDeltaEvent:
			stopReason = ev.StopReason
			outputTokens = ev.OutputTokens
		}
	}

	return map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{map[string]any{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": text.String(),
			},
			"finish_reason": openAIFinishReason(stopReason),
		}},
		"usage": map[string]any{
			"prompt_tokens":     0,
			"completion_tokens": outputTokens,
			"total_tokens":      outputTokens,
		},
	}
}

func closedContentBlock(block Block, payload string) map[string]any {
	if block.Kind == BlockKindToolUse {
		input := map[string]any{}
		// The payload is the sequencer's own serialization of the tool
		// input, so it always parses back.
		if err := json.Unmarshal([]byte(payload), &input); err != nil {
			input = map[string]any{}
		}

		return map[string]any{
			"type":  "tool_use",
			"id":    block.ID,
			"name":  block.Name,
			"input": input,
		}
	}

	return map[string]any{
		"type": "text",
		"text": payload,
	}
}
