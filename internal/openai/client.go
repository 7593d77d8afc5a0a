// Package openai issues streaming chat completion requests upstream.
//
// The client owns the wire call only: it returns the raw SSE byte stream
// and leaves all per-line decoding to the relay, which needs to control
// backpressure and accumulation itself.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dadknowsai/chat-relay/internal/config"
)

const completionsPath = "/v1/chat/completions"

// Recognized message roles. Anything else is dropped during filtering.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn in the upstream request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FilterMessages decodes raw history entries, keeping only entries with a
// recognized role and string content. Malformed entries are dropped
// silently rather than failing the request.
func FilterMessages(raw []json.RawMessage) []Message {
	msgs := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var m Message
		if err := json.Unmarshal(entry, &m); err != nil {
			continue
		}
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// LastUserMessage returns the most recent user turn, if any.
func LastUserMessage(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// UpstreamError carries a non-success upstream status and body so the
// handler can relay them verbatim.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Client is the upstream completions client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an upstream completions client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com",
		// No overall timeout: completion streams are long-lived and
		// bounded by the server's write timeout instead.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey returns true if a provider credential is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string    `json:"model"`
	Stream      bool      `json:"stream"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// StreamChat requests a streaming completion for the given history,
// prepending the fixed persona system turn. On success the returned body
// is the raw newline-delimited "data:" event stream; the caller owns
// closing it. Non-success statuses surface as *UpstreamError.
func (c *Client) StreamChat(ctx context.Context, history []Message) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("no API key configured")
	}

	payload := chatRequest{
		Model:       config.CompletionModel,
		Stream:      true,
		Messages:    append([]Message{{Role: RoleSystem, Content: config.SystemPersona}}, history...),
		Temperature: config.CompletionTemperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorDetailLen))
		_ = resp.Body.Close()
		text := string(detail)
		if text == "" {
			text = "Upstream error"
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: text}
	}

	return resp.Body, nil
}
