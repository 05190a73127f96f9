package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(role, text string) Message {
	content, _ := json.Marshal(text)
	return Message{Role: role, Content: content}
}

func blockMessage(role string, blocks ...ContentBlock) Message {
	content, _ := json.Marshal(blocks)
	return Message{Role: role, Content: content}
}

func TestBuildPrompt_PlainConversation(t *testing.T) {
	prompt, err := buildPrompt(nil, nil, []Message{
		textMessage("user", "What is 2+2?"),
		textMessage("assistant", "4"),
		textMessage("user", "And 3+3?"),
	})
	require.NoError(t, err)

	assert.Equal(t, "User: What is 2+2?\n\nAssistant: 4\n\nUser: And 3+3?\n", prompt)
}

func TestBuildPrompt_SystemString(t *testing.T) {
	system, _ := json.Marshal("You are terse.")

	prompt, err := buildPrompt(system, nil, []Message{textMessage("user", "hi")})
	require.NoError(t, err)

	assert.Contains(t, prompt, "System: You are terse.\n\n")
	assert.Contains(t, prompt, "User: hi")
}

func TestBuildPrompt_SystemBlockList(t *testing.T) {
	system, _ := json.Marshal([]ContentBlock{
		{Type: "text", Text: "Rule one."},
		{Type: "text", Text: "Rule two."},
	})

	prompt, err := buildPrompt(system, nil, []Message{textMessage("user", "hi")})
	require.NoError(t, err)

	assert.Contains(t, prompt, "System: Rule one.\nRule two.")
}

func TestBuildPrompt_ToolInjection(t *testing.T) {
	tools := []Tool{{
		Name:        "read_file",
		Description: "Read a file from disk",
		InputSchema: map[string]any{"type": "object"},
	}}

	prompt, err := buildPrompt(nil, tools, []Message{textMessage("user", "read main.go")})
	require.NoError(t, err)

	assert.Contains(t, prompt, "[SYSTEM INSTRUCTION: TOOL USE]")
	assert.Contains(t, prompt, `"name": "read_file"`)
	assert.Contains(t, prompt, "[[TOOL_CALL:")
	assert.Contains(t, prompt, "]]")
}

func TestBuildPrompt_ReplaysToolHistory(t *testing.T) {
	messages := []Message{
		textMessage("user", "list the directory"),
		blockMessage("assistant",
			ContentBlock{Type: "text", Text: "Listing now."},
			ContentBlock{Type: "tool_use", ID: "toolu_1", Name: "ls", Input: map[string]any{"path": "."}},
		),
		blockMessage("user",
			ContentBlock{Type: "tool_result", ToolUseID: "toolu_1", Content: json.RawMessage(`"main.go"`)},
		),
	}

	prompt, err := buildPrompt(nil, nil, messages)
	require.NoError(t, err)

	assert.Contains(t, prompt, `[[TOOL_CALL: {"name":"ls","input":{"path":"."}}]]`)
	assert.Contains(t, prompt, "[TOOL_RESULT (SUCCESS) for ID toolu_1]: main.go")
}

func TestBuildPrompt_ToolResultError(t *testing.T) {
	messages := []Message{
		blockMessage("user", ContentBlock{
			Type:      "tool_result",
			ToolUseID: "toolu_9",
			IsError:   true,
			Content:   json.RawMessage(`[{"type":"text","text":"no such file"}]`),
		}),
	}

	prompt, err := buildPrompt(nil, nil, messages)
	require.NoError(t, err)

	assert.Contains(t, prompt, "[TOOL_RESULT (ERROR) for ID toolu_9]: no such file")
}

func TestBuildPrompt_ImagePlaceholder(t *testing.T) {
	messages := []Message{
		blockMessage("user", ContentBlock{Type: "image"}),
	}

	prompt, err := buildPrompt(nil, nil, messages)
	require.NoError(t, err)

	assert.Contains(t, prompt, "[User uploaded an image (not supported in text context)]")
}

func TestChatTranscript(t *testing.T) {
	prompt := chatTranscript([]Message{
		textMessage("system", "Be brief."),
		textMessage("user", "hello"),
		blockMessage("user", ContentBlock{Type: "text", Text: "part two"}),
	})

	assert.Equal(t, "System: Be brief.\n\nUser: hello\n\nUser: part two", prompt)
}
