// Package inspect is a client for the sensitive-data inspection service that
// locates personal information in contract text.
package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/internal/redact"
)

// Client calls the inspection service's /v1/inspect endpoint.
// It implements redact.Inspector and is safe for concurrent use.
type Client struct {
	url  string
	http *http.Client
}

// New creates a Client pointing at the given base URL
// (e.g. "http://dlp-inspector:8001").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:  strings.TrimRight(baseURL, "/") + "/v1/inspect",
		http: &http.Client{Timeout: timeout},
	}
}

type inspectRequest struct {
	Text      string   `json:"text"`
	InfoTypes []string `json:"info_types"`
}

type inspectResponse struct {
	Findings []redact.Finding `json:"findings"`
}

// Inspect sends text to the service and returns the reported spans.
// Transport failures and 5xx responses are reported as unavailable; other
// non-200 responses and undecodable bodies are reported as invalid.
func (c *Client) Inspect(ctx context.Context, text string, infoTypes []string) ([]redact.Finding, error) {
	body, err := json.Marshal(inspectRequest{Text: text, InfoTypes: infoTypes})
	if err != nil {
		return nil, fmt.Errorf("inspect: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inspect: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Unavailable("inspect", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fault.Unavailable("inspect", statusErr)
		}
		return nil, fault.Invalid("inspect", statusErr)
	}

	var result inspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fault.Invalid("inspect: decode", err)
	}
	return result.Findings, nil
}
