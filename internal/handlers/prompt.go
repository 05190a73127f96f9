package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// toolInjectionPrompt teaches the upstream model the [[TOOL_CALL: ...]]
// grammar. The marker token and its whitespace tolerance are a wire contract
// with the response adapter; do not reword the FORMAT section.
const toolInjectionPrompt = `
[SYSTEM INSTRUCTION: TOOL USE]
You are acting as an AI assistant that has access to local tools.
The client expects you to use these tools when necessary to complete tasks.

AVAILABLE TOOLS:
%s

INSTRUCTIONS FOR USING TOOLS:
1. When you need to read a file, execute a command, or perform an action provided by the tools above, you MUST output a tool call.
2. The tool call MUST be strict JSON wrapped in specific tags.
3. FORMAT:
   [[TOOL_CALL:
   {
     "name": "<tool_name>",
     "input": { <arguments> }
   }
   ]]
4. Do NOT output the tool call inside Markdown code blocks (like ` + "```json" + `). Output it as raw text.
5. You can call multiple tools if needed, but usually one at a time is safer.
6. After emitting a tool call, STOP generating text. The system will execute it and return the result.
7. If the user provides a "tool_result" in the chat history, treat it as the output of your previous tool call.
`

// Tool is one entry of an Anthropic-style tools array.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ContentBlock is one element of a structured message content array.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Message is one turn of the conversation; Content is either a plain string
// or an array of content blocks.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// systemText flattens an Anthropic system field (string or text-block list)
// into one string.
func systemText(system json.RawMessage) string {
	if len(system) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(system, &s); err == nil {
		return s
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(system, &blocks); err != nil {
		return ""
	}

	var parts []string

	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	return strings.Join(parts, "\n")
}

// toolsForPrompt renders the tools array the way the injection prompt
// advertises them.
func toolsForPrompt(tools []Tool) (string, error) {
	defs := make([]map[string]any, 0, len(tools))

	for _, tool := range tools {
		defs = append(defs, map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.InputSchema,
		})
	}

	rendered, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tool definitions: %w", err)
	}

	return string(rendered), nil
}

// buildPrompt flattens system instruction, tool injection and the message
// transcript into the single prompt string the web backends accept.
func buildPrompt(system json.RawMessage, tools []Tool, messages []Message) (string, error) {
	instruction := systemText(system)

	if len(tools) > 0 {
		toolsJSON, err := toolsForPrompt(tools)
		if err != nil {
			return "", err
		}

		instruction += "\n\n" + fmt.Sprintf(toolInjectionPrompt, toolsJSON)
	}

	var prompt strings.Builder

	if instruction != "" {
		prompt.WriteString("System: " + instruction + "\n\n")
	}

	prompt.WriteString(transcript(messages))

	return prompt.String(), nil
}

// transcript renders the conversation as role-prefixed lines, replaying
// earlier tool calls in marker form so the model sees its own history the
// way it produced it.
func transcript(messages []Message) string {
	var parts []string

	for _, msg := range messages {
		role := capitalize(msg.Role)

		var text string
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			parts = append(parts, fmt.Sprintf("%s: %s", role, text))
			parts = append(parts, "")

			continue
		}

		var blocks []ContentBlock
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}

		parts = append(parts, role+":")

		for _, block := range blocks {
			switch block.Type {
			case "text":
				parts = append(parts, block.Text)
			case "tool_use":
				parts = append(parts, renderToolUse(block))
			case "tool_result":
				parts = append(parts, renderToolResult(block))
			case "image":
				parts = append(parts, "[User uploaded an image (not supported in text context)]")
			}
		}

		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

func renderToolUse(block ContentBlock) string {
	call := struct {
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}{Name: block.Name, Input: block.Input}

	rendered, err := json.Marshal(call)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("[[TOOL_CALL: %s]]", rendered)
}

func renderToolResult(block ContentBlock) string {
	status := "SUCCESS"
	if block.IsError {
		status = "ERROR"
	}

	return fmt.Sprintf("[TOOL_RESULT (%s) for ID %s]: %s", status, block.ToolUseID, toolResultText(block.Content))
}

// toolResultText flattens a tool_result content field, which is either a
// plain string or a list of text blocks.
func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return string(content)
	}

	texts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		texts = append(texts, block.Text)
	}

	return strings.Join(texts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
