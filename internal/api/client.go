// Package api is the typed HTTP client for the storefront REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/metrics"

	"go.uber.org/zap"
)

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token() (string, bool)
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func() (string, bool)

func (f TokenFunc) Token() (string, bool) { return f() }

// Client talks to the REST backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    *metrics.Recorder
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithMetrics records every call
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     TokenFunc(func() (string, bool) { return "", false }),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type call struct {
	op     string
	method string
	path   string
	auth   bool
	body   interface{}
	out    interface{}
}

func (c *Client) do(ctx context.Context, req call) (err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = classify(err)
		}
		c.metrics.ObserveAPICall(req.op, outcome, time.Since(start))
	}()

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if req.auth {
		token, ok := c.tokens.Token()
		if !ok || token == "" {
			return fmt.Errorf("%s: %w", req.op, ErrNoToken)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", req.op, ctxErr)
		}
		c.logger.Debug("Backend call failed", zap.String("op", req.op), zap.Error(err))
		return fmt.Errorf("%s: %w: %v", req.op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var env errorEnvelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &env)
		}
		return &Error{Op: req.op, StatusCode: resp.StatusCode, Message: env.text()}
	}

	if req.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: failed to decode response: %w", req.op, err)
	}

	return nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNoToken):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return "error"
}

func escape(s string) string {
	return url.PathEscape(s)
}
