package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	contractx "github.com/mafa-systems/mafa-agents/agent/contract"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultPoolHosts   = 10
	defaultPoolSize    = 20
	defaultUserAgent   = "MAFA-FinancialAgent/1.0"

	maxResponseSizeBytes = 4 << 20
)

type Config struct {
	Timeout     time.Duration `split_words:"true" default:"15s"`
	MaxAttempts int           `split_words:"true" default:"3"`
	BackoffBase time.Duration `split_words:"true" default:"500ms"`
}

// Client is the shared outbound HTTP client: pooled connections, bounded
// retries with exponential backoff on gateway-class failures, a default
// timeout when callers omit one, credential injection from the request
// context, and request-scoped GET memoization.
//
// One Client is shared by all concurrent requests; per-request state lives on
// the context, never on the Client.
type Client struct {
	http        *http.Client
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	userAgent   string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	transport := &http.Transport{
		MaxIdleConns:        defaultPoolHosts * defaultPoolSize,
		MaxIdleConnsPerHost: defaultPoolSize,
		MaxConnsPerHost:     defaultPoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		http:        &http.Client{Transport: transport},
		timeout:     timeout,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		userAgent:   defaultUserAgent,
	}
}

// Response is the decoded outcome of one outbound call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// UpstreamError carries a non-2xx status surfaced after the retry budget is
// exhausted. It unwraps to the matching contract sentinel so callers can
// branch on errors.Is.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	if isTransientStatus(e.StatusCode) {
		return contractx.ErrUpstreamTransient
	}
	return contractx.ErrUpstream
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type requestOptions struct {
	timeout time.Duration
	headers http.Header
}

type RequestOption func(*requestOptions)

// WithHeader sets a request header; caller-supplied headers win over the
// client's defaults and the injected credential.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Set(key, value)
	}
}

// WithTimeout overrides the default per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Get issues a GET, consulting the request-scoped cache first when one is
// active. Only successful responses are memoized.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	if cache := cacheFrom(ctx); cache != nil {
		if resp, ok := cache.lookup(url); ok {
			return resp, nil
		}
	}

	resp, err := c.do(ctx, http.MethodGet, url, nil, opts...)
	if err != nil {
		return nil, err
	}
	if cache := cacheFrom(ctx); cache != nil {
		cache.store(url, resp)
	}
	return resp, nil
}

func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, url, payload, opts...)
}

func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, url, payload, opts...)
}

func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, url, nil, opts...)
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request body: %v", contractx.ErrValidation, err)
	}
	return payload, nil
}

// do runs the retry loop. Gateway-class statuses (502/503/504) and
// network-level failures are retried up to the attempt budget with
// exponential backoff; every other status ends the loop immediately.
// POST/PUT/DELETE share the same policy because the broker endpoints in use
// tolerate replays; revisit per endpoint before pointing this at a backend
// that does not.
func (c *Client) do(ctx context.Context, method, url string, body []byte, opts ...RequestOption) (*Response, error) {
	o := requestOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		lastResp *Response
		lastErr  error
	)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", contractx.ErrNetwork, err)
			}
		}

		resp, err := c.roundTrip(ctx, method, url, body, o)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s %s: %v", contractx.ErrNetwork, method, url, err)
			}
			lastErr = err
			lastResp = nil
			continue
		}
		if isTransientStatus(resp.StatusCode) {
			lastResp = resp
			lastErr = nil
			continue
		}
		if !resp.OK() {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: resp.Body}
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", contractx.ErrNetwork, method, url, lastErr)
	}
	return nil, &UpstreamError{StatusCode: lastResp.StatusCode, Body: lastResp.Body}
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte, o requestOptions) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := Token(ctx); token != "" {
		req.Header.Set("Authorization", bearerValue(token))
	}
	for key, values := range o.headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       raw,
	}, nil
}

func bearerValue(token string) string {
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
