// Package transport provides the JSON-over-HTTP plumbing shared by the
// provider clients. It never retries: retry policy belongs to the caller.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request when no client is supplied.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is kept.
const maxErrorBody = 4096

// ErrDecode is returned when a 2xx response body cannot be decoded.
// It classifies as unreachable, like any other partial response.
var ErrDecode = errors.New("transport: malformed response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Authorizer decorates an outgoing request with credentials.
type Authorizer func(r *http.Request)

// Bearer sets an "Authorization: Bearer <key>" header.
func Bearer(key string) Authorizer {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+key)
	}
}

// Header sets a single header, e.g. "x-goog-api-key".
func Header(name, value string) Authorizer {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

// Client performs JSON requests against one service.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
}

// New creates a Client. service names the remote in error messages.
func New(service, baseURL string, httpClient *http.Client, auth Authorizer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
	}
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends body (if non-nil) as JSON to path and decodes the response into result
// (if non-nil). Absolute URLs are used as-is.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.service, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecode, c.service, err)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
