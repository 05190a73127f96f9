package adapter

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Sequencer assigns block indices and ids and linearizes extracted segments
// into the abstract event stream. Indices start at 0 and increase by exactly
// one per allocated block; block triples never interleave.
type Sequencer struct {
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Sequence wraps the segments in a MessageStart / MessageDelta / MessageStop
// envelope. Text segments that are empty after trimming are skipped without
// burning an index; deltas still carry the untrimmed text so concatenating
// them reproduces the original text minus markers.
func (s *Sequencer) Sequence(result CompletionResult, segments []Segment) []Event {
	events := []Event{MessageStartEvent{
		MessageID: newMessageID(),
		Model:     result.Model,
	}}

	index := 0
	stopReason := StopReasonEndTurn

	for _, seg := range segments {
		switch seg.Kind {
		case SegmentText:
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}

			block := Block{Index: index, Kind: BlockKindText, ID: newTextBlockID()}
			events = append(events,
				BlockStartEvent{Block: block},
				BlockDeltaEvent{Block: block, Content: seg.Text},
				BlockStopEvent{Block: block},
			)
			index++

		case SegmentToolCall:
			input, err := json.Marshal(seg.ToolInput)
			if err != nil {
				// Input came out of a JSON decode, so this cannot
				// happen; keep the stream well-formed regardless.
				input = []byte("{}")
			}

			block := Block{Index: index, Kind: BlockKindToolUse, ID: newToolID(), Name: seg.ToolName}
			events = append(events,
				BlockStartEvent{Block: block},
				BlockDeltaEvent{Block: block, Content: string(input)},
				BlockStopEvent{Block: block},
			)
			index++

			stopReason = StopReasonToolUse
		}
	}

	events = append(events,
		// Word count stands in for output tokens; the upstream web UIs
		// expose no real counts.
		MessageDeltaEvent{
			StopReason:   stopReason,
			OutputTokens: len(strings.Fields(result.Text)),
		},
		MessageStopEvent{},
	)

	return events
}

func newMessageID() string {
	return "msg_" + uuidHex()
}

func newToolID() string {
	return "toolu_" + uuidHex()[:12]
}

// Text blocks carry no externally visible id on the wire, but keeping one
// makes block bookkeeping uniform.
func newTextBlockID() string {
	return "txt_" + uuidHex()[:12]
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
