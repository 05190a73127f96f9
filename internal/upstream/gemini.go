package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/codemist/webai-bridge/internal/adapter"
)

const (
	geminiAppURL      = "https://gemini.google.com/app"
	geminiGenerateURL = "https://gemini.google.com/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate"
)

// snlm0ePattern scrapes the XSRF token out of the app shell HTML.
var snlm0ePattern = regexp.MustCompile(`"SNlM0e":"(.*?)"`)

// GeminiClient talks to the gemini.google.com web frontend through its
// batchexecute-style StreamGenerate endpoint. Authentication is the
// __Secure-1PSID / __Secure-1PSIDTS cookie pair; the reply comes back as
// deeply nested JSON arrays that gjson paths pick apart.
type GeminiClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	appURL      string
	generateURL string
	psid        string
	psidts      string

	mu     sync.Mutex
	snlm0e string
}

func NewGeminiClient(psid, psidts string, logger *slog.Logger) *GeminiClient {
	return &GeminiClient{
		httpClient:  newHTTPClient(),
		logger:      logger,
		appURL:      geminiAppURL,
		generateURL: geminiGenerateURL,
		psid:        psid,
		psidts:      psidts,
	}
}

func (c *GeminiClient) Name() string {
	return "gemini"
}

// Generate sends one prompt and returns the completed reply text.
func (c *GeminiClient) Generate(ctx context.Context, prompt, model string) (adapter.CompletionResult, error) {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return adapter.CompletionResult{}, fmt.Errorf("acquire session token: %w", err)
	}

	text, err := c.streamGenerate(ctx, token, prompt)
	if err != nil {
		return adapter.CompletionResult{}, fmt.Errorf("generate: %w", err)
	}

	return adapter.CompletionResult{Text: text, Model: model}, nil
}

// sessionToken fetches the app shell once and caches the SNlM0e token the
// generate endpoint requires.
func (c *GeminiClient) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snlm0e != "" {
		return c.snlm0e, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.appURL, nil)
	if err != nil {
		return "", err
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return "", err
	}

	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("app shell status %d", resp.StatusCode)
	}

	match := snlm0ePattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("SNlM0e token not found; cookies are likely expired")
	}

	c.snlm0e = string(match[1])
	c.logger.Info("Acquired Gemini session token")

	return c.snlm0e, nil
}

func (c *GeminiClient) streamGenerate(ctx context.Context, token, prompt string) (string, error) {
	// The request envelope is a JSON array serialized as a string inside
	// another JSON array, as the web app sends it.
	inner, err := json.Marshal([]any{[]any{prompt}, nil, nil})
	if err != nil {
		return "", err
	}

	freq, err := json.Marshal([]any{nil, string(inner)})
	if err != nil {
		return "", err
	}

	form := url.Values{
		"f.req": {string(freq)},
		"at":    {token},
	}

	endpoint := c.generateURL + "?bl=boq_assistant-bard-web-server_20240625.13_p0&rt=c"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

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

	return c.parseStreamResponse(bodyReader)
}

// parseStreamResponse picks the reply text out of the length-prefixed
// envelope lines. Payload lines are JSON arrays tagged "wrb.fr"; the
// interesting part is a JSON string at [0][2], and inside that the first
// candidate's text sits at path 4.0.1.0.
func (c *GeminiClient) parseStreamResponse(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var text string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.Contains(line, "wrb.fr") || !gjson.Valid(line) {
			continue
		}

		payload := gjson.Get(line, "0.2").String()
		if payload == "" {
			continue
		}

		if candidate := gjson.Get(payload, "4.0.1.0").String(); candidate != "" {
			// Later envelope lines carry progressively longer
			// drafts; keep the last one.
			text = candidate
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	if text == "" {
		return "", fmt.Errorf("no reply text in generate response")
	}

	return text, nil
}

func (c *GeminiClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Cookie", fmt.Sprintf("__Secure-1PSID=%s; __Secure-1PSIDTS=%s", c.psid, c.psidts))
}
