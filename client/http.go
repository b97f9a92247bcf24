package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPTransport posts GraphQL requests as JSON to a single endpoint.
//
// Retries are off by default. When enabled with WithRetries, only transport
// failures and 5xx responses are retried; 4xx responses and GraphQL errors
// are returned as-is.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	maxRetries uint64
	logger     zerolog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) {
		t.headers[key] = value
	}
}

// WithRetries retries failed requests up to n times with exponential backoff.
func WithRetries(n uint64) HTTPOption {
	return func(t *HTTPTransport) {
		t.maxRetries = n
	}
}

// WithHTTPLogger sets the logger used for request diagnostics.
func WithHTTPLogger(l zerolog.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport creates a transport for the given GraphQL endpoint.
func NewHTTPTransport(endpoint string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		headers:    map[string]string{},
		logger:     log.Logger,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Do sends the request and decodes the GraphQL envelope.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.maxRetries),
		ctx,
	)

	attempt := 0
	return backoff.RetryWithData(func() (*Response, error) {
		attempt++
		return t.post(ctx, req.OperationName, body, attempt)
	}, policy)
}

func (t *HTTPTransport) post(ctx context.Context, operationName string, body []byte, attempt int) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}

	t.logger.Debug().
		Str("endpoint", t.endpoint).
		Str("operation", operationName).
		Int("attempt", attempt).
		Msg("sending graphql request")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.logger.Error().
			Str("endpoint", t.endpoint).
			Str("operation", operationName).
			Err(err).
			Msg("graphql request failed")
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read graphql response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(payload, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode))
		}
		return nil, backoff.Permanent(fmt.Errorf("decode graphql response: %w", err))
	}

	if resp.StatusCode != http.StatusOK && len(out.Errors) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("graphql endpoint returned status %d", resp.StatusCode))
	}

	return &out, nil
}
