// Package history is the client for the platform's message history store.
// The relay never persists messages itself; on reconnect it asks this
// collaborator for anything a session missed.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mindhaven/relay/internal/models"
)

// Client calls the history retrieval endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchSince returns every envelope in a room with server timestamp
// strictly greater than after, in ascending server-timestamp order.
func (c *Client) FetchSince(ctx context.Context, roomID string, after int64) ([]models.Envelope, error) {
	u := fmt.Sprintf("%s/rooms/%s/messages?after=%s",
		c.baseURL, url.PathEscape(roomID), strconv.FormatInt(after, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history returned status %d", resp.StatusCode)
	}

	var result struct {
		Messages []models.Envelope `json:"messages"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return result.Messages, nil
}

// Disabled stands in when no history collaborator is configured. Resume
// still restores room membership; it just has nothing to replay.
type Disabled struct{}

// FetchSince always reports an empty gap.
func (Disabled) FetchSince(context.Context, string, int64) ([]models.Envelope, error) {
	return nil, nil
}
