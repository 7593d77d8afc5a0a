// Package beehiiv forwards captured emails to the newsletter provider.
//
// The provider accepts two authentication header schemes depending on the
// key's age, so subscription attempts run through an ordered strategy
// list: Bearer first, then X-Authorization when the first scheme is
// rejected with 401.
package beehiiv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dadknowsai/chat-relay/internal/config"
)

// ProviderError carries a non-tolerated provider status and a capped
// slice of the response body for the structured client error.
type ProviderError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("beehiiv status %d: %s", e.StatusCode, e.Detail)
}

// Subscription is one email capture to forward.
type Subscription struct {
	Email     string
	UTMSource string
}

// Client is the newsletter provider client.
type Client struct {
	apiKey        string
	publicationID string
	baseURL       string
	httpClient    *http.Client
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

// NewClient creates a newsletter provider client.
func NewClient(apiKey, publicationID string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		publicationID: publicationID,
		baseURL:       "https://api.beehiiv.com",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if provider credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.publicationID != ""
}

// authAttempt is one authentication scheme to try, with the status that
// makes the next scheme worth trying.
type authAttempt struct {
	name  string
	apply func(*http.Request)
}

func (c *Client) authAttempts() []authAttempt {
	return []authAttempt{
		{name: "bearer", apply: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+c.apiKey)
		}},
		{name: "x-authorization", apply: func(r *http.Request) {
			r.Header.Set("X-Authorization", c.apiKey)
		}},
	}
}

type subscriptionPayload struct {
	Email              string `json:"email"`
	ReactivateExisting bool   `json:"reactivate_existing"`
	SendWelcomeEmail   bool   `json:"send_welcome_email"`
	UTMSource          string `json:"utm_source"`
}

// Subscribe forwards one email to the provider. Already-subscribed
// responses (409) and unprocessable duplicates (422) count as success.
// Other provider failures return *ProviderError; transport failures
// return a plain error.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	if !c.Configured() {
		return fmt.Errorf("no API key configured")
	}

	utm := sub.UTMSource
	if utm == "" {
		utm = config.DefaultUTMSource
	}

	body, err := json.Marshal(subscriptionPayload{
		Email:              sub.Email,
		ReactivateExisting: true,
		SendWelcomeEmail:   true,
		UTMSource:          utm,
	})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s/v2/publications/%s/subscriptions", c.baseURL, c.publicationID)

	var status int
	var respBody []byte
	attempts := c.authAttempts()
	for i, attempt := range attempts {
		status, respBody, err = c.send(ctx, http.MethodPost, url, body, attempt)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status == http.StatusUnauthorized && i+1 < len(attempts) {
			log.Warn().Str("scheme", attempt.name).Msg("beehiiv auth rejected, trying fallback scheme")
			continue
		}
		break
	}

	switch {
	case status >= 200 && status < 300:
		c.setCustomFields(ctx, respBody, utm)
		return nil
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		// Already subscribed or reactivating: success for the caller.
		return nil
	default:
		detail := string(respBody)
		if len(detail) > config.MaxErrorDetailLen {
			detail = detail[:config.MaxErrorDetailLen]
		}
		return &ProviderError{StatusCode: status, Detail: detail}
	}
}

// setCustomFields tags the new subscription with its source via a
// follow-up PATCH. Best-effort: failures are logged, never surfaced.
func (c *Client) setCustomFields(ctx context.Context, createBody []byte, utm string) {
	subID := gjson.GetBytes(createBody, "data.id").String()
	if subID == "" {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"custom_fields": []map[string]string{
			{"name": "source", "value": utm},
		},
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/v2/publications/%s/subscriptions/%s", c.baseURL, c.publicationID, subID)
	for i, attempt := range c.authAttempts() {
		status, _, err := c.send(ctx, http.MethodPatch, url, payload, attempt)
		if err != nil {
			log.Warn().Err(err).Msg("beehiiv custom fields update failed")
			return
		}
		if status == http.StatusUnauthorized && i == 0 {
			continue
		}
		if status < 200 || status >= 300 {
			log.Warn().Int("status", status).Msg("beehiiv custom fields update rejected")
		}
		return
	}
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, auth authAttempt) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	auth.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
	if err != nil {
		respBody = nil
	}
	return resp.StatusCode, respBody, nil
}
