package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"pulse/internal/batch"
)

// RecordFunc receives a timing record for every completed request. The
// composition root typically wires it to the performance collector.
type RecordFunc func(endpoint, method string, start, end time.Time, status int, size int64, retried bool)

// Client is the HTTP client for the upstream storefront API. It handles
// retries with backoff, rate limiting and structured error parsing, and
// implements the transport interface the request batcher dispatches
// through.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	maxRetries  int
	apiKey      string
	record      RecordFunc
}

// Option configures the client
type Option func(*Client)

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRateLimit sets rate limiting
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(requestsPerSecond, burst)
	}
}

// WithAPIKey sets the key sent in the X-API-Key header
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithRecorder sets the per-request timing hook
func WithRecorder(fn RecordFunc) Option {
	return func(c *Client) {
		c.record = fn
	}
}

// NewClient creates a new upstream API client
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		rateLimiter: NewRateLimiter(50, 20), // Default: 50 req/sec, burst 20
		maxRetries:  3,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the HTTP timeout
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// MaxRetries returns the maximum number of retries
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// Get issues a GET request against a path with optional query parameters
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, err := c.doRequest(ctx, http.MethodGet, path, params, nil, nil)
	if err != nil {
		return nil, ErrorWithContext(err, "Get")
	}
	return body, nil
}

// Post issues a JSON POST request. It satisfies the batcher's transport
// interface for dispatched batch envelopes.
func (c *Client) Post(ctx context.Context, path string, payload interface{}, headers map[string]string) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrorWithContext(err, "Post")
	}

	body, err := c.doRequest(ctx, http.MethodPost, path, nil, encoded, headers)
	if err != nil {
		return nil, ErrorWithContext(err, "Post")
	}
	return body, nil
}

// Request issues a generic request from caller-supplied request data; the
// batcher routes every non-batched call through here
func (c *Client) Request(ctx context.Context, endpoint string, data batch.RequestData) ([]byte, error) {
	method := data.Method
	if method == "" {
		method = http.MethodGet
	}

	var params url.Values
	if len(data.Params) > 0 {
		params = url.Values{}
		for k, v := range data.Params {
			params.Set(k, v)
		}
	}

	body, err := c.doRequest(ctx, method, endpoint, params, data.Body, data.Headers)
	if err != nil {
		return nil, ErrorWithContext(err, "Request")
	}
	return body, nil
}

// doRequest handles request execution with retries and rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte, headers map[string]string) ([]byte, error) {
	start := time.Now()
	status := 0
	size := int64(0)
	attempts := 0
	defer func() {
		if c.record != nil {
			c.record(path, method, start, time.Now(), status, size, attempts > 1)
		}
	}()

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		attempts++

		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		requestURL := c.baseURL + path
		if len(params) > 0 {
			requestURL += "?" + params.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && isNetworkError(err) {
				c.waitForRetry(attempt)
				continue
			}
			return nil, err
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				c.waitForRetry(attempt)
				continue
			}
			return nil, err
		}

		status = resp.StatusCode
		size = int64(len(respBody))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		apiErr := ParseAPIError(resp)
		lastErr = apiErr

		if attempt < c.maxRetries && IsRetryableError(apiErr) {
			c.waitForRetry(attempt)
			continue
		}

		return nil, apiErr
	}

	return nil, lastErr
}

// waitForRetry implements exponential backoff with jitter
func (c *Client) waitForRetry(attempt int) {
	baseDelay := 100 * time.Millisecond
	maxDelay := 2 * time.Second

	// Exponential backoff: 100ms, 200ms, 400ms, etc.
	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add small jitter (±20%)
	jitterFactor := float64(time.Now().UnixNano()%100) / 100.0
	jitter := time.Duration(float64(delay) * 0.2 * (2*jitterFactor - 1))
	delay += jitter

	time.Sleep(delay)
}
