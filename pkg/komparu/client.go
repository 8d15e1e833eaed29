package komparu

import (
	"context"
	"net/http"
	"time"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]interface{}) {}
func (nopLogger) Info(string, map[string]interface{})  {}
func (nopLogger) Warn(string, map[string]interface{})  {}
func (nopLogger) Error(string, map[string]interface{}) {}

func loggerOrNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}

	return logger
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

// BatchHandlers receives the completions of a batch dispatch. Handlers may be
// called concurrently and in any order.
type BatchHandlers struct {
	// OnComplete is called for responses with a status below 400.
	OnComplete func(req *Request, resp *Response)
	// OnError is called for responses with a status of 400 or above, and for
	// transport faults, in which case resp is nil.
	OnError func(req *Request, resp *Response, err error)
}

// Transport executes request descriptors.
//
// Execute returns the response together with a non-nil error for statuses of
// 400 and above, so the caller can still map the body. A nil response means
// the request never produced one.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
	// ExecuteAll dispatches every request with at most maxConcurrency in
	// flight and returns once all of them have completed.
	ExecuteAll(ctx context.Context, reqs []*Request, handlers BatchHandlers, maxConcurrency int)
	AddRequestInterceptor(interceptor RequestInterceptor)
	AddResponseInterceptor(interceptor ResponseInterceptor)
}

// State is the working-state phase of a client.
type State int

// Working-state phases. Setting a resource, parameter or header moves Idle to
// Building; a send moves to Sent; completion resets to Idle.
const (
	StateIdle State = iota
	StateBuilding
	StateSent
)

// String returns the phase name.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSent:
		return "sent"
	default:
		return "idle"
	}
}

// CallSettings collects the effect of CallOptions.
type CallSettings struct {
	// Queue, when set, stores the request under this name instead of sending it.
	Queue string
	// Cache enables the response cache for the call.
	Cache bool
	// Mode selects whether failures are returned as errors or as data.
	Mode ErrorMode
}

// CallOption adjusts a single verb call.
type CallOption func(*CallSettings)

// InQueue stores the call in the pending queue under name. The call returns a
// snapshot of the pending queue instead of a response body.
func InQueue(name string) CallOption {
	return func(s *CallSettings) {
		s.Queue = name
	}
}

// WithCache enables or disables the response cache for the call.
func WithCache(enabled bool) CallOption {
	return func(s *CallSettings) {
		s.Cache = enabled
	}
}

// SkipCache disables the response cache for the call.
func SkipCache() CallOption {
	return WithCache(false)
}

// WithErrorMode selects how mapped failures are reported for the call.
func WithErrorMode(mode ErrorMode) CallOption {
	return func(s *CallSettings) {
		s.Mode = mode
	}
}

// Pending is a snapshot of the pending queue keyed by queue name.
type Pending map[string]*Request

// IDResolver inspects an upsert lookup result and returns the id of the
// existing record, if any.
type IDResolver func(result any) (id string, found bool)

// Builder is the chainable part of the client.
type Builder interface {
	Resource(name string) Client
	// SetParam records a dynamic parameter for the next request. Setting the
	// same name twice keeps the last value.
	SetParam(name string, value any) Client
	SetParams(params Params) Client
	Header(name, value string) Client
	SetToken(token string) Client
	SetDomain(domain string) Client
	SetLanguage(lang string) Client
	SetURL(url string) Client
	Reset() Client
	State() State
}

// Verbs issues requests against the current resource. Immediate calls return
// the decoded response body. Calls made with InQueue return a Pending snapshot,
// and calls made while a queue is engaged return nil.
type Verbs interface {
	Authenticate(ctx context.Context, username, password string) (any, error)
	Get(ctx context.Context, query Params, opts ...CallOption) (any, error)
	GetSkipCache(ctx context.Context, query Params, opts ...CallOption) (any, error)
	QueueGet(ctx context.Context, name string) (any, error)
	Show(ctx context.Context, id string, query Params, opts ...CallOption) (any, error)
	ShowSkipCache(ctx context.Context, id string, query Params, opts ...CallOption) (any, error)
	Store(ctx context.Context, body any, opts ...CallOption) (any, error)
	Update(ctx context.Context, id string, body any, opts ...CallOption) (any, error)
	Upsert(ctx context.Context, unique, body Params, resolve IDResolver) (any, error)
	Delete(ctx context.Context, id string, body Params, opts ...CallOption) (any, error)
	Options(ctx context.Context, opts ...CallOption) (any, error)
	Copy(ctx context.Context, id string, query Params, opts ...CallOption) (any, error)
	Patch(ctx context.Context, id string, body Params, opts ...CallOption) (any, error)
	Bulk(ctx context.Context, items []any, opts ...CallOption) (any, error)
	Send(ctx context.Context, method, url string, options RequestOptions, opts ...CallOption) (any, error)
}

// Batching controls deferred dispatch.
type Batching interface {
	// Queue engages batch mode under name and runs build against the client.
	Queue(name string, build func(Client) error) error
	UsingQueue(name string) Client
	ResetQueue() Client
	IsUsingQueue() bool
	Pending() Pending
	// Flush dispatches every pending request and returns one result per name.
	// It never fails as a whole: failures are recorded in Result.Error.
	Flush(ctx context.Context) map[string]*Result
}

// Client is the fluent API client.
type Client interface {
	Builder
	Verbs
	Batching
	Cache() *RequestCache
}

// Config represents client configuration for building a Client.
//
// # Headers
//
// X-Auth-Domain is set from AuthDomain, X-Auth-Token from Token and
// Accept-Language from Language. SetDomain, SetToken and SetLanguage install
// later decorators that win over these. Headers set per call with Header win
// over every decorator.
//
// # Caching
//
// Cache selects the backend; nil means no caching. GET requests are cached
// by default and writes are not. When InvalidateOnWrite is set, a successful
// immediate write drops every cached entry tagged with the written resource.
type Config struct {
	// BaseURL: API root. Defaults to http://api.komparu.com/v1.
	BaseURL string
	// DefaultResource: the resource the client returns to after every send.
	DefaultResource string
	// AuthDomain: value of the X-Auth-Domain header, normally the caller's host.
	AuthDomain string
	// Token: value of the X-Auth-Token header.
	Token string
	// Language: value of the Accept-Language header.
	Language string
	// UserAgent: overrides the default User-Agent header.
	UserAgent string

	// HTTPTimeout: per-request timeout of the underlying HTTP client.
	HTTPTimeout time.Duration
	// RetryMax: retries for 5xx, 429 and connection errors. Zero disables retries.
	RetryMax int
	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration
	// MaxConcurrency: in-flight ceiling for Flush. Defaults to 25.
	MaxConcurrency int
	// RateLimit: requests per second across the client. Zero means unlimited.
	RateLimit int

	// Debug: enables request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger

	// Cache: response cache backend.
	Cache Cache
	// CacheTTL: lifetime of cached entries. Zero means no expiry.
	CacheTTL time.Duration
	// CacheTags: derives invalidation tags from a request. Defaults to ResourceTags.
	CacheTags TagFunc
	// InvalidateOnWrite: drop tagged cache entries after successful writes.
	InvalidateOnWrite bool

	// Metrics: optional Prometheus collector.
	Metrics *MetricsCollector
	// Diagnostics: optional renderer for generic errors.
	Diagnostics DiagnosticRenderer
	// HTTPClient: optional underlying client used by the default transport.
	HTTPClient *http.Client
	// Transport: replaces the default transport entirely.
	Transport Transport
}
