package adapter

// CompletionResult is one completed reply produced by an upstream web client.
// The adapter only ever sees finished text; synthesizing a stream out of it
// is its whole job.
type CompletionResult struct {
	Text      string
	Model     string
	RequestID string
}

// Target selects which wire protocol the adapter emits.
type Target string

const (
	TargetOpenAI    Target = "openai"
	TargetAnthropic Target = "anthropic"
)

const (
	BlockKindText    = "text"
	BlockKindToolUse = "tool_use"

	StopReasonEndTurn = "end_turn"
	StopReasonToolUse = "tool_use"
)

// Block identifies one content block within a response. Indices are 0-based
// and strictly increasing across the whole response regardless of kind.
type Block struct {
	Index int
	Kind  string // BlockKindText or BlockKindToolUse
	ID    string
	Name  string // tool name, tool_use blocks only
}
