// Package httpclient provides the HTTP transport for the auth client SDK:
// a pooled http.Client wrapper with retry on transient failures, pluggable
// request/response hooks, and a circuit breaker.
//
// Hooks are supplied at construction and scoped to one Client; there is no
// ambient or global interception. Request hooks run before every send (token
// injection, correlation IDs). Response hooks run only on failed responses
// and may substitute a replacement response (the refresh-and-retry path).
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// RequestHook runs before a request is sent. A hook error aborts the send and
// propagates unchanged to the caller.
type RequestHook func(ctx context.Context, req *http.Request) error

// ResponseHook runs after a failed (non-2xx) response is received. It may
// return a substitute response (for example the outcome of a retried call),
// or an error that replaces the response.
type ResponseHook func(ctx context.Context, req *http.Request, resp *http.Response) (*http.Response, error)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithRequestHook appends a pre-send hook. Hooks run in registration order.
func WithRequestHook(h RequestHook) Option {
	return func(c *Client) {
		c.requestHooks = append(c.requestHooks, h)
	}
}

// WithResponseHook appends a post-receive hook. Hooks run in registration
// order and stop as soon as one of them produces a successful response.
func WithResponseHook(h ResponseHook) Option {
	return func(c *Client) {
		c.responseHooks = append(c.responseHooks, h)
	}
}

// Client wraps http.Client with retry logic, connection pooling, and hooks.
type Client struct {
	httpClient    *http.Client
	config        Config
	requestHooks  []RequestHook
	responseHooks []ResponseHook
}

// New creates a new HTTP client with retry and connection pooling.
func New(cfg Config, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do executes an HTTP request through the full hook pipeline: request hooks,
// the retrying send, then response hooks on a failed response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for _, hook := range c.requestHooks {
		if err := hook(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	for _, hook := range c.responseHooks {
		if resp.StatusCode < http.StatusBadRequest {
			break
		}
		resp, err = hook(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Send executes the request with retry logic but without running any hooks.
// Hooks that need to resend a request use Send to avoid re-entering themselves.
func (c *Client) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			wait := c.config.RetryWaitMin * time.Duration(1<<uint(attempt-1))
			if wait > c.config.RetryWaitMax {
				wait = c.config.RetryWaitMax
			}

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, fmt.Errorf("rewind request body: %w", bodyErr)
				}
				req.Body = body
			}
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			// Retry on network errors
			if isRetryableError(err) && attempt < c.config.MaxRetries {
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}

		// Retry on 5xx errors (except 501 Not Implemented)
		if resp.StatusCode >= 500 && resp.StatusCode != 501 && attempt < c.config.MaxRetries {
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return resp, err
}

// Get performs an HTTP GET request through the hook pipeline.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs an HTTP POST request through the hook pipeline.
func (c *Client) Post(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}

	// Network errors are retryable
	if _, ok := err.(net.Error); ok {
		return true
	}

	return false
}
