package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/komparu/komparu-go/internal/constants"
	khttp "github.com/komparu/komparu-go/internal/http"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// Static errors for err113 compliance.
var (
	ErrBaseURLRequired = errors.New("base URL is required")
)

// Client implements the komparu.Client interface.
//
// A Client carries mutable working state (resource, parameters, header
// overrides, queue name) and is not safe for concurrent use. Only the batch
// dispatch inside Flush runs concurrently.
type Client struct {
	transport         komparu.Transport
	cache             *komparu.RequestCache
	mapper            *komparu.ResponseMapper
	queue             *QueueExecutor
	logger            komparu.Logger
	baseURL           string
	defaultResource   string
	invalidateOnWrite bool

	// working state
	resource string
	params   komparu.Params
	headers  http.Header
	queueKey string
	state    komparu.State
}

var _ komparu.Client = (*Client)(nil)

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *komparu.Config) []khttp.Option {
	var httpOpts []khttp.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, khttp.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, khttp.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, khttp.WithUserAgent(config.UserAgent))
	}

	if config.HTTPClient != nil {
		httpOpts = append(httpOpts, khttp.WithHTTPClient(config.HTTPClient))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, khttp.WithTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, khttp.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// New creates a new API client.
func New(config *komparu.Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	transport := config.Transport
	if transport == nil {
		transport = khttp.NewClient(createHTTPClientOptions(config)...)
	}

	logger := config.Logger
	if logger == nil {
		logger = komparu.NopLogger()
	}

	cacheOpts := []komparu.RequestCacheOption{
		komparu.WithCacheTTL(config.CacheTTL),
		komparu.WithCacheTags(config.CacheTags),
		komparu.WithCacheMetrics(config.Metrics),
		komparu.WithCacheLogger(logger),
	}

	cache := komparu.NewRequestCache(config.Cache, cacheOpts...).SetTransport(transport)
	mapper := komparu.NewResponseMapper(logger, config.Diagnostics)

	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = constants.MaxPoolSize
	}

	client := &Client{
		transport:         transport,
		cache:             cache,
		mapper:            mapper,
		queue:             NewQueueExecutor(transport, cache, mapper, maxConcurrency, logger, config.Metrics),
		logger:            logger,
		baseURL:           config.BaseURL,
		defaultResource:   config.DefaultResource,
		invalidateOnWrite: config.InvalidateOnWrite,
	}

	client.installInterceptors(config)
	client.Reset()

	return client, nil
}

func (c *Client) installInterceptors(config *komparu.Config) {
	if config.RateLimit > 0 {
		c.transport.AddRequestInterceptor(komparu.RateLimitInterceptor(config.RateLimit))
	}

	if config.AuthDomain != "" {
		c.SetDomain(config.AuthDomain)
	}

	if config.Token != "" {
		c.SetToken(config.Token)
	}

	if config.Language != "" {
		c.SetLanguage(config.Language)
	}

	if config.Logger != nil {
		c.transport.AddRequestInterceptor(komparu.LoggingInterceptor(config.Logger))
		c.transport.AddResponseInterceptor(komparu.LoggingResponseInterceptor(config.Logger))
	}

	if config.Metrics != nil {
		c.transport.AddRequestInterceptor(komparu.MetricsRequestInterceptor(config.Metrics))
		c.transport.AddResponseInterceptor(komparu.MetricsResponseInterceptor(config.Metrics))
	}
}

// Cache returns the request cache.
func (c *Client) Cache() *komparu.RequestCache {
	return c.cache
}

// Resource selects the resource targeted by the next request.
func (c *Client) Resource(name string) komparu.Client {
	c.resource = strings.Trim(name, "/")
	c.building()

	return c
}

// SetParam records a dynamic parameter. The last value for a name wins.
func (c *Client) SetParam(name string, value any) komparu.Client {
	c.params[name] = value
	c.building()

	return c
}

// SetParams merges params recursively into the accumulated parameters.
func (c *Client) SetParams(params komparu.Params) komparu.Client {
	c.params = komparu.Merge(c.params, params)
	c.building()

	return c
}

// Header adds a header override for the next request.
func (c *Client) Header(name, value string) komparu.Client {
	c.headers.Set(name, value)
	c.building()

	return c
}

// SetToken installs the X-Auth-Token decorator.
func (c *Client) SetToken(token string) komparu.Client {
	c.transport.AddRequestInterceptor(komparu.AuthTokenInterceptor(token))

	return c
}

// SetDomain installs the X-Auth-Domain decorator.
func (c *Client) SetDomain(domain string) komparu.Client {
	c.transport.AddRequestInterceptor(komparu.AuthDomainInterceptor(domain))

	return c
}

// SetLanguage installs the Accept-Language decorator. Tags that do not parse
// are sent verbatim.
func (c *Client) SetLanguage(lang string) komparu.Client {
	interceptor, err := komparu.LanguageInterceptor(lang)
	if err != nil {
		c.logger.Warn("sending unparsed Accept-Language", map[string]interface{}{
			"language": lang,
			"error":    err.Error(),
		})

		interceptor = komparu.HeaderInterceptor(constants.HeaderAcceptLanguage, lang)
	}

	c.transport.AddRequestInterceptor(interceptor)

	return c
}

// SetURL replaces the base URL.
func (c *Client) SetURL(url string) komparu.Client {
	c.baseURL = url

	return c
}

// Reset returns the working state to the default resource with no
// parameters or header overrides.
func (c *Client) Reset() komparu.Client {
	c.resource = c.defaultResource
	c.params = komparu.Params{}
	c.headers = make(http.Header)
	c.state = komparu.StateIdle

	return c
}

// State returns the working-state phase.
func (c *Client) State() komparu.State {
	return c.state
}

func (c *Client) building() {
	if c.state == komparu.StateIdle {
		c.state = komparu.StateBuilding
	}
}

// Queue engages batch mode under name and runs build against the client.
func (c *Client) Queue(name string, build func(komparu.Client) error) error {
	c.UsingQueue(name)

	err := build(c)
	if err != nil {
		return fmt.Errorf("building queued request %s: %w", name, err)
	}

	return nil
}

// UsingQueue engages batch mode: verb calls store their request under name.
// An empty name returns to immediate mode.
func (c *Client) UsingQueue(name string) komparu.Client {
	c.queueKey = name

	return c
}

// ResetQueue returns to immediate mode. Pending requests are kept.
func (c *Client) ResetQueue() komparu.Client {
	c.queueKey = ""

	return c
}

// IsUsingQueue reports whether batch mode is engaged.
func (c *Client) IsUsingQueue() bool {
	return c.queueKey != ""
}

// Pending returns a snapshot of the pending queue.
func (c *Client) Pending() komparu.Pending {
	return c.queue.Snapshot()
}

// Flush dispatches the pending queue and returns one result per name. It
// leaves batch mode and resets the working state.
func (c *Client) Flush(ctx context.Context) map[string]*komparu.Result {
	results := c.queue.Flush(ctx)

	c.ResetQueue()
	c.Reset()

	return results
}

func (c *Client) resourceURL(segments ...string) (string, error) {
	if c.resource == "" {
		return "", komparu.ErrMissingResource
	}

	var builder strings.Builder

	builder.WriteString(strings.TrimRight(c.baseURL, "/"))
	builder.WriteByte('/')
	builder.WriteString(c.resource)

	for _, segment := range segments {
		builder.WriteByte('/')
		builder.WriteString(segment)
	}

	return builder.String(), nil
}
