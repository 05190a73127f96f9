package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceText(t *testing.T, text string) []Event {
	t.Helper()

	extractor := NewExtractor(discardLogger())
	sequencer := NewSequencer()

	return sequencer.Sequence(
		CompletionResult{Text: text, Model: "gemini-web", RequestID: "req_test"},
		extractor.Extract(text),
	)
}

func TestSequencer_EmptyText(t *testing.T) {
	events := sequenceText(t, "")

	require.Len(t, events, 3)

	start, ok := events[0].(MessageStartEvent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(start.MessageID, "msg_"))
	assert.Equal(t, "gemini-web", start.Model)

	delta, ok := events[1].(MessageDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, StopReasonEndTurn, delta.StopReason)
	assert.Zero(t, delta.OutputTokens)

	_, ok = events[2].(MessageStopEvent)
	require.True(t, ok)
}

func TestSequencer_PlainText(t *testing.T) {
	events := sequenceText(t, "The answer is 42.")

	// MessageStart, one block triple, MessageDelta, MessageStop.
	require.Len(t, events, 6)

	block := events[1].(BlockStartEvent).Block
	assert.Equal(t, 0, block.Index)
	assert.Equal(t, BlockKindText, block.Kind)
	assert.NotEmpty(t, block.ID)

	assert.Equal(t, "The answer is 42.", events[2].(BlockDeltaEvent).Content)
	assert.Equal(t, 0, events[3].(BlockStopEvent).Block.Index)

	delta := events[4].(MessageDeltaEvent)
	assert.Equal(t, StopReasonEndTurn, delta.StopReason)
	assert.Equal(t, 4, delta.OutputTokens)
}

func TestSequencer_TextAndToolCall(t *testing.T) {
	text := `Let me check. [[TOOL_CALL: {"name":"read_file","input":{"path":"a.txt"}}]] done.`
	events := sequenceText(t, text)

	var (
		starts []BlockStartEvent
		deltas []BlockDeltaEvent
		stops  []BlockStopEvent
	)

	for _, ev := range events {
		switch ev := ev.(type) {
		case BlockStartEvent:
			starts = append(starts, ev)
		case BlockDeltaEvent:
			deltas = append(deltas, ev)
		case BlockStopEvent:
			stops = append(stops, ev)
		}
	}

	require.Len(t, starts, 3)
	require.Len(t, deltas, 3)
	require.Len(t, stops, 3)

	// Indices strictly increasing from 0 regardless of kind.
	for i, start := range starts {
		assert.Equal(t, i, start.Block.Index)
	}

	assert.Equal(t, BlockKindText, starts[0].Block.Kind)
	assert.Equal(t, BlockKindToolUse, starts[1].Block.Kind)
	assert.Equal(t, BlockKindText, starts[2].Block.Kind)

	tool := starts[1].Block
	assert.True(t, strings.HasPrefix(tool.ID, "toolu_"))
	assert.Equal(t, "read_file", tool.Name)
	assert.JSONEq(t, `{"path":"a.txt"}`, deltas[1].Content)

	final := events[len(events)-2].(MessageDeltaEvent)
	assert.Equal(t, StopReasonToolUse, final.StopReason)
}

func TestSequencer_TextDeltasRoundTrip(t *testing.T) {
	// Concatenating text-block deltas must reproduce the original text
	// with the markers removed.
	marker := `[[TOOL_CALL: {"name":"run","input":{"cmd":"ls"}}]]`
	text := "first part " + marker + " second part"

	events := sequenceText(t, text)

	var rebuilt strings.Builder

	for _, ev := range events {
		if delta, ok := ev.(BlockDeltaEvent); ok && delta.Block.Kind == BlockKindText {
			rebuilt.WriteString(delta.Content)
		}
	}

	assert.Equal(t, strings.ReplaceAll(text, marker, ""), rebuilt.String())
}

func TestSequencer_WhitespaceSegmentsSkipped(t *testing.T) {
	text := `[[TOOL_CALL: {"name":"a","input":{}}]]   [[TOOL_CALL: {"name":"b","input":{}}]]`
	events := sequenceText(t, text)

	var starts []BlockStartEvent

	for _, ev := range events {
		if start, ok := ev.(BlockStartEvent); ok {
			starts = append(starts, start)
		}
	}

	// The whitespace between the markers allocates no block and burns no
	// index.
	require.Len(t, starts, 2)
	assert.Equal(t, 0, starts[0].Block.Index)
	assert.Equal(t, 1, starts[1].Block.Index)
	assert.Equal(t, BlockKindToolUse, starts[0].Block.Kind)
	assert.Equal(t, BlockKindToolUse, starts[1].Block.Kind)
	assert.NotEqual(t, starts[0].Block.ID, starts[1].Block.ID)
}

func TestSequencer_BlockTriplesNeverInterleave(t *testing.T) {
	text := `a [[TOOL_CALL: {"name":"x","input":{}}]] b`
	events := sequenceText(t, text)

	open := -1

	for _, ev := range events {
		switch ev := ev.(type) {
		case BlockStartEvent:
			require.Equal(t, -1, open, "block started while another is open")
			open = ev.Block.Index
		case BlockDeltaEvent:
			require.Equal(t, open, ev.Block.Index)
		case BlockStopEvent:
			require.Equal(t, open, ev.Block.Index)
			open = -1
		}
	}

	assert.Equal(t, -1, open, "all blocks closed")
}
