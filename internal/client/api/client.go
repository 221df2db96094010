// Package api implements the HTTP client for the directory backend. Response
// bodies carrying the encrypted {d,t,n} envelope, either at the top level or
// nested one level under a "data" key, are transparently decoded; everything
// else passes through untouched.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/trolleysystems/callsync/internal/cryptox"
)

// Client is the network collaborator used by the auth and sync services.
// Get and Post return the (possibly envelope-decoded) response body.
type Client interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retries    int
}

// Option configures the HTTP client.
type Option func(*HTTPClient)

// WithRetries sets how many times a request is retried after a transport
// error or a 5xx response.
func WithRetries(retries int) Option {
	return func(c *HTTPClient) {
		c.retries = retries
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// New creates an HTTPClient for the given base URL.
func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retries:    2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs a GET and decodes any envelope in the response.
func (c *HTTPClient) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}

// Post performs a POST with a JSON body and decodes any envelope in the
// response.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	return decodeBody(raw)
}

// Ping checks server liveness. Envelope decoding is skipped; only the status
// matters.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

// Close releases client resources.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		// the body reader is consumed per attempt, so the request is rebuilt
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = parseErrorResponse(resp)
			resp.Body.Close()
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
		}

		if resp.StatusCode >= 400 {
			return nil, newError(resp.StatusCode, raw)
		}
		return raw, nil
	}

	return nil, lastErr
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return newError(resp.StatusCode, body)
}

func newError(status int, body []byte) error {
	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg != "" {
			return &Error{StatusCode: status, Message: msg, RequestID: errResp.RequestID}
		}
	}
	return &Error{StatusCode: status, Message: string(body)}
}

// decodeBody detects the {d,t,n} envelope at the top level or nested under a
// "data" key and returns the decrypted plaintext; anything else is returned
// as-is.
func decodeBody(raw []byte) ([]byte, error) {
	var env cryptox.Envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.IsComplete() {
		return cryptox.Open(env)
	}

	var nested struct {
		Data cryptox.Envelope `json:"data"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Data.IsComplete() {
		return cryptox.Open(nested.Data)
	}

	return raw, nil
}
