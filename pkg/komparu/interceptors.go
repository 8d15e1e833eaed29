package komparu

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/komparu/komparu-go/internal/constants"
)

// RequestInterceptor is called before a request is sent. It receives a clone
// of the descriptor, so it may change headers freely.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor is called after a response is received.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) error

// InterceptorChain manages a chain of interceptors.
type InterceptorChain struct {
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewInterceptorChain creates a new interceptor chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{
		requestInterceptors:  make([]RequestInterceptor, 0),
		responseInterceptors: make([]ResponseInterceptor, 0),
	}
}

// AddRequestInterceptor adds a request interceptor to the chain.
func (c *InterceptorChain) AddRequestInterceptor(interceptor RequestInterceptor) {
	c.requestInterceptors = append(c.requestInterceptors, interceptor)
}

// AddResponseInterceptor adds a response interceptor to the chain.
func (c *InterceptorChain) AddResponseInterceptor(interceptor ResponseInterceptor) {
	c.responseInterceptors = append(c.responseInterceptors, interceptor)
}

// Decorate returns a clone of req with every request interceptor applied.
// Headers already present on req are restored afterwards, so per-request
// overrides always win over decorator headers.
func (c *InterceptorChain) Decorate(ctx context.Context, req *Request) (*Request, error) {
	decorated := req.Clone()
	decorated.Headers = make(http.Header)

	err := c.ExecuteRequestInterceptors(ctx, decorated)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Headers {
		decorated.Headers[key] = append([]string(nil), values...)
	}

	return decorated, nil
}

// ExecuteRequestInterceptors runs all request interceptors.
func (c *InterceptorChain) ExecuteRequestInterceptors(ctx context.Context, req *Request) error {
	for _, interceptor := range c.requestInterceptors {
		err := interceptor(ctx, req)
		if err != nil {
			return fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	return nil
}

// ExecuteResponseInterceptors runs all response interceptors.
func (c *InterceptorChain) ExecuteResponseInterceptors(ctx context.Context, req *Request, resp *Response) error {
	for _, interceptor := range c.responseInterceptors {
		err := interceptor(ctx, req, resp)
		if err != nil {
			return fmt.Errorf("response interceptor failed: %w", err)
		}
	}

	return nil
}

// Common Interceptors

// HeaderInterceptor sets a header on every request.
func HeaderInterceptor(name, value string) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Headers == nil {
			req.Headers = make(http.Header)
		}

		req.Headers.Set(name, value)

		return nil
	}
}

// AuthDomainInterceptor sets X-Auth-Domain.
func AuthDomainInterceptor(domain string) RequestInterceptor {
	return HeaderInterceptor(constants.HeaderAuthDomain, domain)
}

// AuthTokenInterceptor sets X-Auth-Token.
func AuthTokenInterceptor(token string) RequestInterceptor {
	return HeaderInterceptor(constants.HeaderAuthToken, token)
}

// LanguageInterceptor sets Accept-Language to the canonical form of lang.
func LanguageInterceptor(lang string) (RequestInterceptor, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidLanguage, lang, err)
	}

	return HeaderInterceptor(constants.HeaderAcceptLanguage, tag.String()), nil
}

// LoggingInterceptor logs requests.
func LoggingInterceptor(logger Logger) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		logger.Debug("API Request", map[string]interface{}{
			"method": req.Method,
			"url":    req.EffectiveURL(),
			"queue":  req.Name,
		})

		return nil
	}
}

// LoggingResponseInterceptor logs responses.
func LoggingResponseInterceptor(logger Logger) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		fields := map[string]interface{}{
			"method":      req.Method,
			"url":         req.EffectiveURL(),
			"status_code": resp.StatusCode,
			"duration_ms": resp.Duration.Milliseconds(),
		}

		if resp.Error != nil {
			fields["error"] = resp.Error.Error()
			logger.Error("API Response Error", fields)
		} else {
			logger.Debug("API Response", fields)
		}

		return nil
	}
}

// RateLimitInterceptor limits outgoing requests to requestsPerSecond, with a
// burst of the same size. It blocks until a token is available or ctx ends.
func RateLimitInterceptor(requestsPerSecond int) RequestInterceptor {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)

	return func(ctx context.Context, req *Request) error {
		err := limiter.Wait(ctx)
		if err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		return nil
	}
}

// MetricsRequestInterceptor records the request start time.
func MetricsRequestInterceptor(collector *MetricsCollector) RequestInterceptor {
	return func(ctx context.Context, req *Request) error {
		if req.Metadata == nil {
			req.Metadata = make(map[string]interface{})
		}

		req.Metadata["start_time"] = time.Now()

		return nil
	}
}

// MetricsResponseInterceptor records request counts and latencies.
func MetricsResponseInterceptor(collector *MetricsCollector) ResponseInterceptor {
	return func(ctx context.Context, req *Request, resp *Response) error {
		duration := resp.Duration

		if req.Metadata != nil {
			if startTime, ok := req.Metadata["start_time"].(time.Time); ok {
				duration = time.Since(startTime)
			}
		}

		collector.RecordRequest(req.Method, resp.StatusCode, duration)

		return nil
	}
}
