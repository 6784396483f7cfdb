// Package ai talks to an OpenAI-compatible chat completions endpoint. It is
// used for expense classification and monthly narrative summaries.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL   = "https://api.openai.com/v1/chat/completions"
	DefaultModel = "gpt-3.5-turbo"

	// PlaceholderKey is shipped in sample env files and never a real credential.
	PlaceholderKey = "your_openai_api_key_here"
)

// ErrNotConfigured is returned by Complete when no usable API key is set.
var ErrNotConfigured = errors.New("ai client not configured")

type Config struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
}

// Configured reports whether the key is set and is not the sample placeholder.
func (c Config) Configured() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != PlaceholderKey
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether calls can be attempted at all.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Configured()
}

// Error describes a failed completion call. Retryable is true for network
// failures, rate limiting and server errors.
type Error struct {
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("status %d: %s", e.StatusCode, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("ai completion: %s: %v", msg, e.Cause)
	}
	return "ai completion: " + msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Temporary lets retry loops tell transient failures apart.
func (e *Error) Temporary() bool { return e.Retryable }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one system instruction and one user message and returns the
// trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", &Error{Message: "marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Message: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: "request failed", Retryable: ctx.Err() == nil, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Message: "read response", Retryable: true, Cause: err}
	}

	slog.DebugContext(ctx, "AI completion response received",
		"status", resp.StatusCode,
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody), 200),
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Message: "malformed response", Cause: err}
	}
	if parsed.Error != nil {
		return "", &Error{StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{StatusCode: resp.StatusCode, Message: "no choices in response"}
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &Error{StatusCode: resp.StatusCode, Message: "empty content"}
	}
	return content, nil
}

// retryableStatus reports whether a non-200 answer may succeed on a later try.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
