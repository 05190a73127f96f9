package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/codemist/webai-bridge/internal/adapter"
)

const (
	claudeBaseURL = "https://claude.ai/api"

	// The web API rejects requests without a browser User-Agent.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/124.0"
)

// ClaudeClient talks to the unofficial claude.ai web API: it resolves the
// account's organization once, creates a fresh chat conversation per request
// and accumulates the completion SSE into a single string.
type ClaudeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	cookie     string // sessionKey cookie, pre-formatted

	mu    sync.Mutex
	orgID string
}

func NewClaudeClient(sessionKey string, logger *slog.Logger) *ClaudeClient {
	cookie := sessionKey
	if !strings.Contains(cookie, "=") {
		cookie = "sessionKey=" + cookie
	}

	return &ClaudeClient{
		httpClient: newHTTPClient(),
		logger:     logger,
		baseURL:    claudeBaseURL,
		cookie:     cookie,
	}
}

func (c *ClaudeClient) Name() string {
	return "claude"
}

// Generate sends the prompt in a brand-new conversation and blocks until
// the reply is complete.
func (c *ClaudeClient) Generate(ctx context.Context, prompt, model string) (adapter.CompletionResult, error) {
	orgID, err := c.organizationID(ctx)
	if err != nil {
		return adapter.CompletionResult{}, fmt.Errorf("resolve organization: %w", err)
	}

	conversationID, err := c.createConversation(ctx, orgID)
	if err != nil {
		return adapter.CompletionResult{}, fmt.Errorf("create conversation: %w", err)
	}

	text, err := c.completion(ctx, orgID, conversationID, prompt, model)
	if err != nil {
		return adapter.CompletionResult{}, fmt.Errorf("completion: %w", err)
	}

	return adapter.CompletionResult{Text: text, Model: model}, nil
}

func (c *ClaudeClient) organizationID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.orgID != "" {
		return c.orgID, nil
	}

	body, err := c.get(ctx, c.baseURL+"/organizations")
	if err != nil {
		return "", err
	}

	orgID := gjson.GetBytes(body, "0.id").String()
	if orgID == "" {
		// Older accounts nest the list under "data".
		orgID = gjson.GetBytes(body, "data.0.id").String()
	}

	if orgID == "" {
		return "", fmt.Errorf("organization id not found in response")
	}

	c.orgID = orgID
	c.logger.Info("Resolved Claude organization", "org_id", orgID)

	return orgID, nil
}

func (c *ClaudeClient) createConversation(ctx context.Context, orgID string) (string, error) {
	url := fmt.Sprintf("%s/organizations/%s/chat_conversations", c.baseURL, orgID)

	payload, err := json.Marshal(map[string]any{"name": ""})
	if err != nil {
		return "", err
	}

	body, err := c.post(ctx, url, payload, "application/json")
	if err != nil {
		return "", err
	}

	conversationID := gjson.GetBytes(body, "uuid").String()
	if conversationID == "" {
		return "", fmt.Errorf("conversation uuid not found in response")
	}

	return conversationID, nil
}

// completion reads the upstream SSE and concatenates the "completion"
// fields until a stop_reason arrives. The bridge deliberately waits for the
// full reply; callers get a synthesized stream afterwards.
func (c *ClaudeClient) completion(ctx context.Context, orgID, conversationID, prompt, model string) (string, error) {
	url := fmt.Sprintf("%s/organizations/%s/chat_conversations/%s/completion", c.baseURL, orgID, conversationID)

	payload, err := json.Marshal(map[string]any{
		"prompt":      prompt,
		"model":       model,
		"timezone":    "Europe/London",
		"attachments": []any{},
		"files":       []any{},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncateBody(body))
	}

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return "", err
	}

	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	var full strings.Builder

	scanner := bufio.NewScanner(bodyReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if !gjson.Valid(data) {
			c.logger.Warn("Skipping malformed SSE line from Claude", "line", truncateBody([]byte(line)))
			continue
		}

		full.WriteString(gjson.Get(data, "completion").String())

		if gjson.Get(data, "stop_reason").Exists() && gjson.Get(data, "stop_reason").Type != gjson.Null {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read completion stream: %w", err)
	}

	if full.Len() == 0 {
		c.logger.Warn("No content received from Claude completion endpoint")
	}

	return full.String(), nil
}

func (c *ClaudeClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *ClaudeClient) post(ctx context.Context, url string, payload []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *ClaudeClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return nil, err
	}

	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncateBody(body))
	}

	return body, nil
}

func (c *ClaudeClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Cookie", c.cookie)
}

func truncateBody(body []byte) string {
	const limit = 200

	s := string(body)
	if len(s) > limit {
		return s[:limit] + "..."
	}

	return s
}
