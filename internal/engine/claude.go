package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ClaudeClient implements ModelClient using the Anthropic Messages API.
type ClaudeClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxAttempts int
}

// ClaudeOption configures the Claude client.
type ClaudeOption func(*ClaudeClient)

// WithClaudeModel sets the model name.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) { c.model = model }
}

// WithClaudeBaseURL overrides the API endpoint.
func WithClaudeBaseURL(url string) ClaudeOption {
	return func(c *ClaudeClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithClaudeTimeout sets a per-request HTTP timeout. By default there is none.
func WithClaudeTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeClient) { c.httpClient.Timeout = d }
}

// WithClaudeMaxAttempts enables retries of transient failures (429, 5xx).
// The default is a single attempt.
func WithClaudeMaxAttempts(n int) ClaudeOption {
	return func(c *ClaudeClient) { c.maxAttempts = n }
}

// NewClaudeClient creates a new Anthropic Claude model client.
func NewClaudeClient(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	c := &ClaudeClient{
		apiKey:      apiKey,
		baseURL:     "https://api.anthropic.com/v1",
		model:       "claude-sonnet-4-20250514",
		httpClient:  &http.Client{},
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a request to the Anthropic Messages API and returns the response text.
func (c *ClaudeClient) Complete(ctx context.Context, r Request) (string, error) {
	if err := requireKey("claude", c.apiKey); err != nil {
		return "", err
	}

	var blocks []claudeBlock
	if r.ImageURL != "" {
		blocks = append(blocks, claudeBlock{Type: "image", Source: &claudeSource{Type: "url", URL: r.ImageURL}})
	}
	prompt := r.Prompt
	if r.JSON {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}
	blocks = append(blocks, claudeBlock{Type: "text", Text: prompt})

	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   1024,
		Temperature: 0.3,
		System:      r.System,
		Messages:    []claudeMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	return withRetry(ctx, "claude", c.maxAttempts, func(ctx context.Context) (string, error) {
		return c.doRequest(ctx, body)
	})
}

func (c *ClaudeClient) doRequest(ctx context.Context, body []byte) (string, error) {
	respBody, err := postJSON(ctx, c.httpClient, c.baseURL+"/messages", body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if claudeResp.Error != nil {
		return "", fmt.Errorf("api error: %s", claudeResp.Error.Message)
	}
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
