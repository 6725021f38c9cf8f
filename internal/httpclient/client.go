package httpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"listingsync/internal/clock"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRateLimitDelay = 1 * time.Second

	// NoRetries disables retries for a request (a zero MaxRetries means "default")
	NoRetries = -1
	// NoRateLimit disables inter-request spacing on a client
	NoRateLimit time.Duration = -1

	maxResponseBytes = 10 << 20
)

// Options configures a Client
type Options struct {
	BaseURL        string
	RateLimitDelay time.Duration // minimum gap between calls, from the end of the previous one
	Timeout        time.Duration // per physical call
	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Clock          clock.Clock
	Logger         *slog.Logger
}

// RequestConfig describes one logical request
type RequestConfig struct {
	URL            string // absolute, or relative to Options.BaseURL
	Method         string
	Header         http.Header
	Body           any // []byte, string, url.Values (form) or a JSON-encodable value
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Response is a successful (2xx) response with its body decoded by content type
type Response struct {
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
	JSON        any    // set for application/json bodies
	Text        string // set for text/* bodies
}

// Decode unmarshals a JSON body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Client executes outbound requests with spacing, timeouts, classified
// errors and retries. Auth headers set on the client apply to every call.
type Client struct {
	opts   Options
	http   *http.Client
	clock  clock.Clock
	logger *slog.Logger

	// gate serializes physical calls so the spacing check and the
	// last-call timestamp update happen under a single owner
	gate     chan struct{}
	lastCall time.Time

	authMu     sync.RWMutex
	authHeader string
	authValue  string
}

// New creates a new Client, filling unset options with defaults
func New(opts Options) *Client {
	if opts.RateLimitDelay == 0 {
		opts.RateLimitDelay = DefaultRateLimitDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		opts:   opts,
		http:   httpClient,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "httpclient"),
		gate:   make(chan struct{}, 1),
	}
}

// SetBearerToken authenticates subsequent calls with "Authorization: Bearer <token>"
func (c *Client) SetBearerToken(token string) {
	c.setAuth("Authorization", "Bearer "+token)
}

// SetBasicAuth authenticates subsequent calls with HTTP basic auth
func (c *Client) SetBasicAuth(username, password string) {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	c.setAuth("Authorization", "Basic "+creds)
}

// SetAPIKey authenticates subsequent calls with an API key header
func (c *Client) SetAPIKey(header, key string) {
	c.setAuth(header, key)
}

// ClearAuth removes any auth header previously set
func (c *Client) ClearAuth() {
	c.setAuth("", "")
}

func (c *Client) setAuth(header, value string) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.authHeader = header
	c.authValue = value
}

// Do executes the request, retrying retryable failures with exponential
// backoff. Every failure is returned as an *APIError.
func (c *Client) Do(ctx context.Context, cfg RequestConfig) (*Response, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = c.opts.MaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = c.opts.RetryBaseDelay
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolveURL(cfg.URL)
	if err != nil {
		return nil, &APIError{Code: CodeBadRequest, Message: err.Error()}
	}
	body, contentType, err := encodeBody(cfg.Body)
	if err != nil {
		return nil, &APIError{Code: CodeBadRequest, Message: err.Error()}
	}

	schedule := retrySchedule(baseDelay)

	for attempt := 0; ; attempt++ {
		resp, apiErr := c.once(ctx, method, target, cfg.Header, body, contentType, timeout)
		if apiErr == nil {
			return resp, nil
		}

		if !apiErr.Retryable || attempt >= maxRetries || ctx.Err() != nil {
			if attempt > 0 {
				c.logger.Warn("Request failed after retries",
					"method", method,
					"url", target,
					"attempts", attempt+1,
					"code", apiErr.Code,
					"status", apiErr.Status)
			}
			return nil, apiErr
		}

		delay := schedule.NextBackOff()
		c.logger.Debug("Retrying request",
			"method", method,
			"url", target,
			"attempt", attempt+1,
			"code", apiErr.Code,
			"delay", delay)

		if err := c.clock.Sleep(ctx, delay); err != nil {
			return nil, apiErr
		}
	}
}

// retrySchedule doubles the delay after every failed attempt, starting at base
func retrySchedule(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << 16
	b.Reset()
	return b
}

// once performs a single physical call
func (c *Client) once(ctx context.Context, method, target string, header http.Header, body []byte, contentType string, timeout time.Duration) (*Response, *APIError) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, &APIError{Code: CodeTimeout, Message: "request cancelled before it was sent", Retryable: true}
	}
	defer func() { <-c.gate }()

	if c.opts.RateLimitDelay > 0 && !c.lastCall.IsZero() {
		if wait := c.opts.RateLimitDelay - c.clock.Now().Sub(c.lastCall); wait > 0 {
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, &APIError{Code: CodeTimeout, Message: "request cancelled while rate limited", Retryable: true}
			}
		}
	}
	defer func() { c.lastCall = c.clock.Now() }()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, &APIError{Code: CodeBadRequest, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(callCtx, err, timeout)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(callCtx, err, timeout)
	}

	out := decodeResponse(resp, raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, FromStatus(resp.StatusCode, errorMessage(out), errorDetails(out))
	}
	return out, nil
}

func (c *Client) applyAuth(req *http.Request) {
	c.authMu.RLock()
	defer c.authMu.RUnlock()
	if c.authHeader == "" || req.Header.Get(c.authHeader) != "" {
		return
	}
	req.Header.Set(c.authHeader, c.authValue)
}

func (c *Client) resolveURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	if c.opts.BaseURL == "" {
		return "", fmt.Errorf("relative url %q without a base url", raw)
	}
	return strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/"), nil
}

func transportError(callCtx context.Context, err error, timeout time.Duration) *APIError {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.Canceled) {
		return &APIError{
			Code:      CodeTimeout,
			Message:   fmt.Sprintf("request aborted after %s", timeout),
			Retryable: true,
			Details:   err.Error(),
		}
	}
	return &APIError{
		Code:      CodeNetworkError,
		Message:   "no response received",
		Retryable: true,
		Details:   err.Error(),
	}
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal body: %w", err)
		}
		return data, "application/json", nil
	}
}

// decodeResponse parses the body according to the declared content type only
func decodeResponse(resp *http.Response, raw []byte) *Response {
	out := &Response{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}
	mediaType, _, err := mime.ParseMediaType(out.ContentType)
	if err != nil || len(raw) == 0 {
		return out
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out.JSON = v
		}
	case strings.HasPrefix(mediaType, "text/"):
		out.Text = string(raw)
	}
	return out
}

func errorMessage(r *Response) string {
	if obj, ok := r.JSON.(map[string]any); ok {
		for _, key := range []string{"message", "error_description", "error"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if r.Text != "" {
		return strings.TrimSpace(r.Text)
	}
	return ""
}

func errorDetails(r *Response) any {
	if r.JSON != nil {
		return r.JSON
	}
	if r.Text != "" {
		return r.Text
	}
	return nil
}
