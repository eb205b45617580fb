package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WireRecord is a record as exchanged with the sync server.
type WireRecord struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// PushRequest carries local changes to the sync server.
type PushRequest struct {
	Created []WireRecord `json:"created,omitempty"`
	Updated []WireRecord `json:"updated,omitempty"`
	Deleted []string     `json:"deleted,omitempty"`
}

// PushResponse is the server's answer to a push. IDMap maps locally
// generated IDs of created records to their server-assigned IDs.
type PushResponse struct {
	IDMap map[string]string `json:"idMap,omitempty"`
}

// PullResponse is a full source snapshot from the server.
type PullResponse struct {
	Records []WireRecord `json:"records"`
	Deleted []string     `json:"deleted,omitempty"`
}

// HTTPError is a non-2xx response from the sync server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sync server returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether an error is worth retrying: network failures
// and 5xx responses are transient, 4xx responses are not.
func Retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	// Transport-level failures (DNS, refused connections, timeouts).
	return true
}

// Client talks the JSON sync protocol with the backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a sync client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Push uploads local changes for a source and returns the server's ID
// assignments for created records.
func (c *Client) Push(ctx context.Context, source string, req PushRequest) (*PushResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sources/%s/push", c.baseURL, url.PathEscape(source))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var out PushResponse
	if err := decodeStrict(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	return &out, nil
}

// Pull downloads the server snapshot for a source.
func (c *Client) Pull(ctx context.Context, source string) (*PullResponse, error) {
	endpoint := fmt.Sprintf("%s/sources/%s/records", c.baseURL, url.PathEscape(source))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var out PullResponse
	if err := decodeStrict(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return &out, nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}

// decodeStrict decodes JSON rejecting unknown fields and trailing data.
func decodeStrict(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
