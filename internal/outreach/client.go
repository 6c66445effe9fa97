// Package outreach asks the local message service for a suggested first
// message to the profile being viewed.
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the local message service.
const DefaultEndpoint = "http://127.0.0.1:8000"

// Fallback is returned when the service answers without a message.
const Fallback = "Oops nothing was generated, contact your human copilot!"

// Request is the body posted to /messages.
type Request struct {
	Profiles string `json:"profiles" validate:"required"`
}

// Response is the body returned by /messages.
type Response struct {
	Messages string `json:"messages"`
}

// Client posts profile titles to the message service.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client; a nil httpClient uses a 30s timeout.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), http: httpClient}
}

// Suggest returns a suggested message for a profile with the given titles.
func (c *Client) Suggest(ctx context.Context, titles string) (string, error) {
	body, err := json.Marshal(Request{Profiles: titles})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("message service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("message service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if strings.TrimSpace(out.Messages) == "" {
		return Fallback, nil
	}
	return out.Messages, nil
}
