// Package httpjson is the small JSON-over-HTTP client shared by the partner gateways.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// StatusError is returned when the partner answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client posts and gets JSON documents relative to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Set(key, value)
	}
}

// New creates a client for baseURL. Request deadlines come from the caller's context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode marshals a request body. It is exported so callers that sign the exact bytes can
// compute the signature before sending.
func Encode(body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request body: %w", err)
	}
	return b, nil
}

// Do sends payload (nil for no body) to path and decodes a 2xx response into out (nil to discard).
func (c *Client) Do(ctx context.Context, method, path string, payload []byte, out any, headers ...http.Header) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}
	for _, h := range headers {
		for k, v := range h {
			req.Header[k] = v
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	rsp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not execute request: %w", err)
	}
	defer func() {
		if cerr := rsp.Body.Close(); cerr != nil {
			slog.Warn("could not close response body", slog.String("error", cerr.Error()))
		}
	}()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(rsp.Body, maxErrorBody))
		return &StatusError{StatusCode: rsp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(rsp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response body: %w", err)
	}
	return nil
}
