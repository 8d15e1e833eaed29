package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/komparu/komparu-go/internal/constants"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// Static errors for err113 compliance.
var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// StatusError is returned together with the response for statuses of 400
// and above.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client is the HTTP transport. It decorates request descriptors through an
// interceptor chain and executes them with retryablehttp.
type Client struct {
	httpClient  *nethttp.Client
	retryClient *retryablehttp.Client
	userAgent   string
	logger      Logger
	debug       bool
	timeout     time.Duration

	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	mu    sync.RWMutex
	chain *komparu.InterceptorChain
}

// Option configures the HTTP client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig retries 5xx, 429 and connection errors up to retryMax times.
func WithRetryConfig(retryMax int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.retryMax = retryMax
		c.retryWaitMin = waitMin
		c.retryWaitMax = waitMax
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *nethttp.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a new HTTP transport. Retries are disabled unless
// WithRetryConfig is given.
func NewClient(opts ...Option) *Client {
	client := &Client{
		userAgent:    constants.DefaultUserAgent,
		timeout:      constants.DefaultHTTPTimeout,
		retryWaitMin: constants.DefaultRetryWaitMin,
		retryWaitMax: constants.DefaultRetryWaitMax,
		chain:        komparu.NewInterceptorChain(),
	}

	for _, opt := range opts {
		opt(client)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = client.retryMax
	retryClient.RetryWaitMin = client.retryWaitMin
	retryClient.RetryWaitMax = client.retryWaitMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	if client.logger != nil && client.debug {
		retryClient.Logger = &leveledLogger{logger: client.logger}
	}

	if client.httpClient != nil {
		retryClient.HTTPClient = client.httpClient
	} else {
		retryClient.HTTPClient.Timeout = client.timeout
	}

	client.retryClient = retryClient

	return client
}

// AddRequestInterceptor adds a request decorator.
func (c *Client) AddRequestInterceptor(interceptor komparu.RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chain.AddRequestInterceptor(interceptor)
}

// AddResponseInterceptor adds a response interceptor.
func (c *Client) AddResponseInterceptor(interceptor komparu.ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chain.AddResponseInterceptor(interceptor)
}

// Execute sends one request. For statuses of 400 and above the response is
// returned together with a *StatusError. A nil response means the request
// failed before a response arrived.
func (c *Client) Execute(ctx context.Context, req *komparu.Request) (*komparu.Response, error) {
	c.mu.RLock()
	decorated, err := c.chain.Decorate(ctx, req)
	c.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("decorating request: %w", err)
	}

	httpReq, err := c.buildRequest(ctx, decorated)
	if err != nil {
		return nil, err
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":  httpReq.Method,
			"url":     httpReq.URL.String(),
			"headers": redactHeaders(httpReq.Header),
		})
	}

	start := time.Now()

	httpResp, err := c.retryClient.Do(httpReq)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("HTTP Request failed", map[string]interface{}{
				"method": httpReq.Method,
				"url":    httpReq.URL.String(),
				"error":  err.Error(),
			})
		}

		return nil, fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &komparu.Response{
		StatusCode:   httpResp.StatusCode,
		Status:       httpResp.Status,
		Headers:      httpResp.Header,
		Body:         body,
		EffectiveURL: decorated.EffectiveURL(),
		Duration:     time.Since(start),
	}

	if httpResp.Request != nil && httpResp.Request.URL != nil {
		resp.EffectiveURL = httpResp.Request.URL.String()
	}

	if resp.StatusCode >= nethttp.StatusBadRequest {
		resp.Error = &StatusError{
			Method:     decorated.Method,
			URL:        resp.EffectiveURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":      resp.StatusCode,
			"duration_ms": resp.Duration.Milliseconds(),
			"body_size":   len(body),
		})
	}

	c.mu.RLock()
	err = c.chain.ExecuteResponseInterceptors(ctx, decorated, resp)
	c.mu.RUnlock()

	if err != nil && c.logger != nil {
		c.logger.Warn("response interceptor failed", map[string]interface{}{
			"method": decorated.Method,
			"url":    resp.EffectiveURL,
			"error":  err.Error(),
		})
	}

	if resp.Error != nil {
		return resp, resp.Error
	}

	return resp, nil
}

// ExecuteAll dispatches reqs with at most maxConcurrency in flight. Every
// request produces exactly one handler call; a failing member never stops
// the others.
func (c *Client) ExecuteAll(ctx context.Context, reqs []*komparu.Request, handlers komparu.BatchHandlers, maxConcurrency int) {
	if maxConcurrency <= 0 {
		maxConcurrency = constants.MaxPoolSize
	}

	var group errgroup.Group

	group.SetLimit(maxConcurrency)

	for _, req := range reqs {
		group.Go(func() error {
			resp, err := c.Execute(ctx, req)

			switch {
			case resp == nil || resp.StatusCode >= nethttp.StatusBadRequest:
				if handlers.OnError != nil {
					handlers.OnError(req, resp, err)
				}
			default:
				if handlers.OnComplete != nil {
					handlers.OnComplete(req, resp)
				}
			}

			return nil
		})
	}

	_ = group.Wait()
}

func (c *Client) buildRequest(ctx context.Context, req *komparu.Request) (*retryablehttp.Request, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}

	var body interface{}
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.EffectiveURL(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if httpReq.Header.Get(constants.HeaderAccept) == "" {
		httpReq.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	}

	if req.IsJSON() && httpReq.Header.Get(constants.HeaderContentType) == "" {
		httpReq.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}

	if httpReq.Header.Get(constants.HeaderUserAgent) == "" && c.userAgent != "" {
		httpReq.Header.Set(constants.HeaderUserAgent, c.userAgent)
	}

	return httpReq, nil
}

func redactHeaders(headers nethttp.Header) map[string]string {
	out := make(map[string]string, len(headers))

	for key := range headers {
		if key == constants.HeaderAuthToken {
			out[key] = "[REDACTED]"

			continue
		}

		out[key] = headers.Get(key)
	}

	return out
}

// leveledLogger adapts Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fieldsOf(keysAndValues))
}

func fieldsOf(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return fields
}
