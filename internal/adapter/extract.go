package adapter

import (
	"encoding/json"
	"log/slog"
	"regexp"
)

// toolCallPattern bounds the embedded tool-call grammar the injection prompt
// asks the model to emit. The payload is matched lazily up to `}]]` so braces
// inside JSON string values survive; a literal "]]" inside the payload cannot
// be bounded by this grammar. The literal token and whitespace tolerance are
// a wire contract with existing prompts and must not change.
var toolCallPattern = regexp.MustCompile(`(?s)\[\[TOOL_CALL:\s*(\{.*?\})\s*\]\]`)

const (
	SegmentText     = "text"
	SegmentToolCall = "tool_call"
)

// Segment is one run of completion text: plain text or an extracted tool
// invocation. Segments appear in source order and never overlap.
type Segment struct {
	Kind      string
	Text      string         // text segments; untrimmed
	ToolName  string         // tool_call segments
	ToolInput map[string]any // tool_call segments, never nil
}

// Extractor scans raw completion text for the tool-call marker grammar.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract splits text into ordered text and tool-call segments. A marker
// whose JSON payload does not parse is downgraded to a text segment carrying
// the full marker substring verbatim; that is a recoverable condition, never
// a request failure.
func (e *Extractor) Extract(text string) []Segment {
	var segments []Segment

	last := 0

	for _, m := range toolCallPattern.FindAllStringSubmatchIndex(text, -1) {
		if pre := text[last:m[0]]; pre != "" {
			segments = append(segments, Segment{Kind: SegmentText, Text: pre})
		}

		raw := text[m[2]:m[3]]

		var call struct {
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}

		if err := json.Unmarshal([]byte(raw), &call); err != nil {
			e.logger.Warn("Failed to parse tool call JSON, passing marker through as text",
				"snippet", truncate(raw, 50),
				"error", err,
			)
			segments = append(segments, Segment{Kind: SegmentText, Text: text[m[0]:m[1]]})
		} else {
			if call.Input == nil {
				call.Input = map[string]any{}
			}

			segments = append(segments, Segment{
				Kind:      SegmentToolCall,
				ToolName:  call.Name,
				ToolInput: call.Input,
			})
		}

		last = m[1]
	}

	if rest := text[last:]; rest != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: rest})
	}

	return segments
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
