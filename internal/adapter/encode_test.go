package adapter

import (
	"encoding/json"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectFrames(t *testing.T, seq iter.Seq[string]) []string {
	t.Helper()

	var frames []string

	for frame := range seq {
		frames = append(frames, frame)
	}

	return frames
}

// parseSSEFrame splits an "event: <type>\ndata: <json>\n\n" record.
func parseSSEFrame(t *testing.T, frame string) (string, map[string]any) {
	t.Helper()

	require.True(t, strings.HasSuffix(frame, "\n\n"))

	lines := strings.Split(strings.TrimSuffix(frame, "\n\n"), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "event: "))
	require.True(t, strings.HasPrefix(lines[1], "data: "))

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &data))

	return strings.TrimPrefix(lines[0], "event: "), data
}

// parseDataFrame splits a "data: <json>\n\n" record.
func parseDataFrame(t *testing.T, frame string) map[string]any {
	t.Helper()

	require.True(t, strings.HasPrefix(frame, "data: "))
	require.True(t, strings.HasSuffix(frame, "\n\n"))

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")), &data))

	return data
}

func TestEncoder_UnknownTarget(t *testing.T) {
	encoder := NewEncoder()

	_, err := encoder.Encode(nil, Target("grpc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target protocol")
}

func TestEncoder_AnthropicEventLifecycle(t *testing.T) {
	text := `Let me check. [[TOOL_CALL: {"name":"read_file","input":{"path":"a.txt"}}]] done.`
	events := sequenceText(t, text)

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetAnthropic)
	require.NoError(t, err)

	frames := collectFrames(t, seq)
	require.Len(t, frames, len(events), "anthropic framing is 1:1 with events")

	var names []string

	for _, frame := range frames {
		name, data := parseSSEFrame(t, frame)
		names = append(names, name)
		assert.Equal(t, name, data["type"], "event name matches payload type")
	}

	assert.Equal(t, []string{
		"message_start",
		"content_block_start", "content_block_delta", "content_block_stop",
		"content_block_start", "content_block_delta", "content_block_stop",
		"content_block_start", "content_block_delta", "content_block_stop",
		"message_delta",
		"message_stop",
	}, names)
}

func TestEncoder_AnthropicToolBlockShape(t *testing.T) {
	text := `[[TOOL_CALL: {"name":"read_file","input":{"path":"a.txt"}}]]`
	events := sequenceText(t, text)

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetAnthropic)
	require.NoError(t, err)

	frames := collectFrames(t, seq)

	_, start := parseSSEFrame(t, frames[1])
	block := start["content_block"].(map[string]any)
	assert.Equal(t, "tool_use", block["type"])
	assert.Equal(t, "read_file", block["name"])
	assert.True(t, strings.HasPrefix(block["id"].(string), "toolu_"))

	// Arguments never ride on content_block_start; they stream as a
	// partial_json delta.
	assert.Equal(t, map[string]any{}, block["input"])

	_, delta := parseSSEFrame(t, frames[2])
	deltaBody := delta["delta"].(map[string]any)
	assert.Equal(t, "input_json_delta", deltaBody["type"])
	assert.JSONEq(t, `{"path":"a.txt"}`, deltaBody["partial_json"].(string))

	_, msgDelta := parseSSEFrame(t, frames[len(frames)-2])
	assert.Equal(t, "tool_use", msgDelta["delta"].(map[string]any)["stop_reason"])
}

func TestEncoder_AnthropicTextDelta(t *testing.T) {
	events := sequenceText(t, "hello world")

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetAnthropic)
	require.NoError(t, err)

	frames := collectFrames(t, seq)

	_, start := parseSSEFrame(t, frames[1])
	block := start["content_block"].(map[string]any)
	assert.Equal(t, "text", block["type"])
	assert.Equal(t, "", block["text"])

	_, delta := parseSSEFrame(t, frames[2])
	deltaBody := delta["delta"].(map[string]any)
	assert.Equal(t, "text_delta", deltaBody["type"])
	assert.Equal(t, "hello world", deltaBody["text"])

	_, msgDelta := parseSSEFrame(t, frames[4])
	usage := msgDelta["usage"].(map[string]any)
	assert.Equal(t, float64(2), usage["output_tokens"])
}

func TestEncoder_OpenAIStream(t *testing.T) {
	text := `Let me check. [[TOOL_CALL: {"name":"read_file","input":{"path":"a.txt"}}]] done.`
	events := sequenceText(t, text)

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetOpenAI)
	require.NoError(t, err)

	frames := collectFrames(t, seq)

	// Two text deltas, one finish chunk, one [DONE]. Tool blocks do not
	// appear in this target's stream.
	require.Len(t, frames, 4)
	assert.Equal(t, "data: [DONE]\n\n", frames[len(frames)-1])

	first := parseDataFrame(t, frames[0])
	second := parseDataFrame(t, frames[1])
	finish := parseDataFrame(t, frames[2])

	for _, chunk := range []map[string]any{first, second, finish} {
		assert.Equal(t, "chat.completion.chunk", chunk["object"])
		assert.Equal(t, first["id"], chunk["id"], "id stable across the stream")
		assert.Equal(t, first["created"], chunk["created"], "created stable across the stream")
	}

	assert.True(t, strings.HasPrefix(first["id"].(string), "chatcmpl-"))

	firstChoice := first["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "Let me check. ", firstChoice["delta"].(map[string]any)["content"])
	assert.Nil(t, firstChoice["finish_reason"])

	finishChoice := finish["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_calls", finishChoice["finish_reason"])
	assert.Empty(t, finishChoice["delta"])
}

func TestEncoder_OpenAIFinishReasonStop(t *testing.T) {
	events := sequenceText(t, "plain reply")

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetOpenAI)
	require.NoError(t, err)

	frames := collectFrames(t, seq)
	require.Len(t, frames, 3)

	finish := parseDataFrame(t, frames[1])
	choice := finish["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "stop", choice["finish_reason"])
}

func TestEncoder_CrossProtocolTextFidelity(t *testing.T) {
	// The same event stream must carry identical delta text in both
	// framings.
	text := `alpha [[TOOL_CALL: {"name":"x","input":{"k":"v"}}]] omega`
	events := sequenceText(t, text)
	encoder := NewEncoder()

	anthropicSeq, err := encoder.Encode(events, TargetAnthropic)
	require.NoError(t, err)

	var anthropicText strings.Builder

	for _, frame := range collectFrames(t, anthropicSeq) {
		name, data := parseSSEFrame(t, frame)
		if name != "content_block_delta" {
			continue
		}

		delta := data["delta"].(map[string]any)
		if delta["type"] == "text_delta" {
			anthropicText.WriteString(delta["text"].(string))
		}
	}

	openaiSeq, err := encoder.Encode(events, TargetOpenAI)
	require.NoError(t, err)

	var openaiText strings.Builder

	for _, frame := range collectFrames(t, openaiSeq) {
		if frame == "data: [DONE]\n\n" {
			continue
		}

		choice := parseDataFrame(t, frame)["choices"].([]any)[0].(map[string]any)
		if content, ok := choice["delta"].(map[string]any)["content"].(string); ok {
			openaiText.WriteString(content)
		}
	}

	assert.Equal(t, anthropicText.String(), openaiText.String())
}

func TestEncoder_IteratorStopsWhenAbandoned(t *testing.T) {
	events := sequenceText(t, "a b c")

	encoder := NewEncoder()
	seq, err := encoder.Encode(events, TargetAnthropic)
	require.NoError(t, err)

	// A disconnecting client just stops pulling; the iterator must not
	// require draining.
	count := 0

	for range seq {
		count++
		if count == 2 {
			break
		}
	}

	assert.Equal(t, 2, count)
}
