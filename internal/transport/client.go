// Package transport is the single HTTP client every endpoint wrapper goes
// through. It owns the base URL, the request timeout, and the request and
// response interceptor chains.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/observability"
)

// DefaultTimeout is applied when Config.Timeout is not set.
const DefaultTimeout = 20 * time.Second

const maxResponseBytes = 10 << 20

var errAborted = errors.New("request aborted by interceptor")

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   config.RetryConfig
	Breaker config.BreakerConfig
}

// ConfigFrom converts the application API config.
func ConfigFrom(cfg config.APIConfig) Config {
	return Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Retry: cfg.Retry, Breaker: cfg.Breaker}
}

// FilePart is a single file sent as multipart/form-data.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Request describes one call relative to the base URL.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Multipart *FilePart
	// Accept defaults to application/json.
	Accept string
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestInterceptor may modify an outbound request. Returning an error
// aborts the call.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor observes completed calls. resp is nil when no response
// was received.
type ResponseInterceptor interface {
	OnResponse(req *http.Request, resp *Response, elapsed time.Duration)
	OnError(req *http.Request, resp *Response, err error, elapsed time.Duration)
}

// Client sends requests to the backend.
type Client struct {
	cfg        Config
	base       *url.URL
	httpClient *http.Client
	reqChain   []RequestInterceptor
	respChain  []ResponseInterceptor
	metrics    *observability.Metrics
	logger     *zap.Logger
	breaker    *Breaker
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithRequestInterceptor appends to the request chain. Interceptors run in
// registration order.
func WithRequestInterceptor(i RequestInterceptor) Option {
	return func(c *Client) { c.reqChain = append(c.reqChain, i) }
}

// WithResponseInterceptor appends to the response chain.
func WithResponseInterceptor(i ResponseInterceptor) Option {
	return func(c *Client) { c.respChain = append(c.respChain, i) }
}

// WithMetrics records per-attempt request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRoundTripper replaces the underlying transport. It is still wrapped
// with otelhttp.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = otelhttp.NewTransport(rt) }
}

// WithBreaker replaces the breaker built from Config.Breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a Client. BaseURL must be an absolute URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("transport: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	rt := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	c := &Client{
		cfg:  cfg,
		base: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(rt),
		},
		logger: zap.NewNop(),
		sleep:  sleepCtx,
	}
	if cfg.Breaker.FailureThreshold > 0 {
		c.breaker = NewBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Do sends req and returns the response for any 2xx status. Non-2xx
// statuses return a *ResponseError together with the response.
// Idempotent reads are retried when Retry.MaxAttempts > 1.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}
	target := c.resolve(req.Path, req.Query)

	attempts := 1
	if isIdempotentMethod(req.Method) {
		attempts = c.cfg.Retry.MaxAttempts
	}

	var resp *Response
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(c.cfg.Retry, attempt)
			c.logger.Debug("transport: retrying",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt+1),
				zap.Int("max", attempts),
				zap.Duration("delay", delay),
			)
			c.metrics.RecordTransportRetry(req.Method)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("transport: %s %s: %w", req.Method, req.Path, err)
			}
		}

		resp, err = c.once(ctx, req, target, body, contentType)
		if err == nil {
			return resp, nil
		}
		if !shouldRetry(ctx, resp, err) {
			break
		}
	}
	return resp, err
}

func (c *Client) once(ctx context.Context, req Request, target string, body []byte, contentType string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	accept := req.Accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for _, intercept := range c.reqChain {
		if err := intercept(httpReq); err != nil {
			return nil, fmt.Errorf("transport: %w: %w", errAborted, err)
		}
	}

	if err := c.breaker.allow(); err != nil {
		err = fmt.Errorf("transport: %s %s: %w", req.Method, req.Path, err)
		c.notifyError(httpReq, nil, err, 0)
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			c.observe(req, outcomeIgnored)
		} else {
			c.observe(req, outcomeFailure)
		}
		c.metrics.RecordTransportRequest(req.Method, 0, elapsed)
		err = fmt.Errorf("transport: %s %s: %w", req.Method, req.Path, err)
		c.notifyError(httpReq, nil, err, elapsed)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	elapsed := time.Since(start)
	c.metrics.RecordTransportRequest(req.Method, httpResp.StatusCode, elapsed)
	if err != nil {
		c.observe(req, outcomeFailure)
		err = fmt.Errorf("transport: read response: %w", err)
		c.notifyError(httpReq, nil, err, elapsed)
		return nil, err
	}

	if httpResp.StatusCode >= 500 {
		c.observe(req, outcomeFailure)
	} else {
		c.observe(req, outcomeSuccess)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		rerr := &ResponseError{StatusCode: httpResp.StatusCode, Body: data}
		c.notifyError(httpReq, resp, rerr, elapsed)
		return resp, rerr
	}

	for _, ri := range c.respChain {
		ri.OnResponse(httpReq, resp, elapsed)
	}
	return resp, nil
}

// observe feeds an attempt outcome to the breaker and logs transitions.
func (c *Client) observe(req Request, o outcome) {
	from, to, changed := c.breaker.record(o)
	if !changed {
		return
	}
	log := c.logger.Info
	if to == BreakerOpen {
		log = c.logger.Warn
	}
	log("transport: circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)
}

func (c *Client) notifyError(req *http.Request, resp *Response, err error, elapsed time.Duration) {
	for _, ri := range c.respChain {
		ri.OnError(req, resp, err, elapsed)
	}
}

// resolve joins path, which callers pass already escaped, onto the base URL.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	joined := strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.TrimLeft(path, "/")
	if unescaped, err := url.PathUnescape(joined); err == nil {
		u.Path, u.RawPath = unescaped, joined
	} else {
		u.Path, u.RawPath = joined, ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// encodeBody returns the request body and its content type.
func encodeBody(req Request) ([]byte, string, error) {
	if req.Multipart != nil {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		field := req.Multipart.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, req.Multipart.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("transport: create form file: %w", err)
		}
		if _, err := io.Copy(part, req.Multipart.Content); err != nil {
			return nil, "", fmt.Errorf("transport: copy form file: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("transport: close multipart: %w", err)
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("transport: marshal body: %w", err)
	}
	return data, "application/json", nil
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func shouldRetry(ctx context.Context, resp *Response, err error) bool {
	if ctx.Err() != nil || errors.Is(err, errAborted) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return isRetryableStatus(rerr.StatusCode)
	}
	return resp == nil
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isNetTimeout reports whether err is a network-level timeout.
func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
