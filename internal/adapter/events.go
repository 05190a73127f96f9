package adapter

// Event is one protocol-neutral streaming event. The concrete types below
// form a closed set; encoders switch over them exhaustively instead of
// probing loosely typed maps.
//
// A well-formed stream is:
//
//	MessageStart (BlockStart BlockDelta* BlockStop)* MessageDelta MessageStop
//
// with block triples strictly sequential, never interleaved.
type Event interface {
	event()
}

type MessageStartEvent struct {
	MessageID string
	Model     string
}

type BlockStartEvent struct {
	Block Block
}

// BlockDeltaEvent carries the block payload: the segment text for text
// blocks, the JSON-serialized tool input for tool_use blocks.
type BlockDeltaEvent struct {
	Block   Block
	Content string
}

type BlockStopEvent struct {
	Block Block
}

// MessageDeltaEvent carries the terminal stop reason and output usage.
// It occurs exactly once, immediately before MessageStop.
type MessageDeltaEvent struct {
	StopReason   string
	OutputTokens int
}

type MessageStopEvent struct{}

func (MessageStartEvent) event() {}
func (BlockStartEvent) event()   {}
func (BlockDeltaEvent) event()   {}
func (BlockStopEvent) event()    {}
func (MessageDeltaEvent) event() {}
func (MessageStopEvent) event()  {}
