// Package llm implements the interview collaborators on top of an
// OpenAI-compatible chat-completions endpoint.
package llm

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

	"github.com/ashureev/techtree/internal/shared"
)

var (
	// ErrNoJSON is returned when a response contains no JSON object.
	ErrNoJSON = errors.New("no JSON object found in LLM response")
	// ErrEmptyContent is returned when the model answers with nothing.
	ErrEmptyContent = errors.New("LLM returned empty content")
)

// CallError is returned when a model call fails, so callers can tell a bad
// answer from an unreachable endpoint.
type CallError struct {
	Op      string
	Reason  string
	Wrapped error
}

func (e *CallError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

func (e *CallError) Unwrap() error {
	return e.Wrapped
}

// Config configures a Client.
type Config struct {
	BaseURL    string // e.g. "https://api.openai.com"
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the first backoff between attempts; it doubles after
	// each failure. Zero means 500ms, negative disables waiting.
	RetryDelay time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client talks to one chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Zero values get sensible defaults.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: retries,
		retryDelay: delay,
		http:       hc,
		logger:     logger,
	}
}

// WithModel returns a copy of c that uses model.
func (c *Client) WithModel(model string) *Client {
	cp := *c
	if model != "" {
		cp.model = model
	}
	return &cp
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

// Request is one completion call.
type Request struct {
	Op          string
	System      string
	User        string
	Temperature float64
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends req and returns the raw text of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				break
			}
		}
		out, err := c.call(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("LLM call failed", "op", req.Op, "attempt", attempt+1, "error", err)
	}
	return "", &CallError{
		Op:      req.Op,
		Reason:  fmt.Sprintf("failed after %d attempts", c.maxRetries),
		Wrapped: lastErr,
	}
}

// CompleteJSON sends req, extracts the outermost JSON object of the answer,
// validates it against schema and decodes it into out. Parse and validation
// failures are retried.
func (c *Client) CompleteJSON(ctx context.Context, req Request, schema *Schema, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				break
			}
		}
		text, err := c.call(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		raw := extractJSON(text)
		if raw == "" {
			lastErr = ErrNoJSON
			continue
		}
		if schema != nil {
			if err := schema.Validate([]byte(raw)); err != nil {
				lastErr = err
				continue
			}
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			lastErr = fmt.Errorf("invalid JSON from LLM: %w", err)
			continue
		}
		return nil
	}
	return &CallError{
		Op:      req.Op,
		Reason:  fmt.Sprintf("failed after %d attempts", c.maxRetries),
		Wrapped: lastErr,
	}
}

// backoff waits before retry number attempt (1-based).
func (c *Client) backoff(ctx context.Context, attempt int) error {
	if c.retryDelay < 0 {
		return ctx.Err()
	}
	return shared.Backoff(ctx, c.retryDelay, attempt-1)
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    make([]chatMessage, 0, 2),
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// extractJSON finds the outermost JSON object in s, skipping braces inside
// quoted strings.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
