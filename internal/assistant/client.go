// Package assistant is the HTTP client for the inference service behind the
// embedded assistant widget. The relay forwards raw text plus attachment
// references and relays whatever structured reply comes back; it has no
// opinion about intents.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AttachmentRef describes an attachment accompanying a message, by
// reference: the inference service pulls bytes from the upload store itself.
type AttachmentRef struct {
	MimeType  string `json:"mime_type"`
	Filename  string `json:"filename,omitempty"`
	SizeBytes int64  `json:"size"`
	Ref       string `json:"ref,omitempty"`
	Data      string `json:"data,omitempty"` // base64, only for small inline payloads
}

// Request is one user turn forwarded to the inference service.
type Request struct {
	Message     string          `json:"message"`
	UserID      string          `json:"user_id"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// Reply is the structured response from the inference service.
type Reply struct {
	Text       string          `json:"text"`
	Intent     string          `json:"intent,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Client calls the assistant inference endpoint.
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

// Infer sends one turn and returns the assistant's structured reply.
func (c *Client) Infer(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	var reply Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return &reply, nil
}
