package komparu

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/komparu/komparu-go/internal/constants"
)

// CacheEntry is a stored value with its invalidation tags.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	Tags      []string  `json:"tags,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry has a deadline in the past.
func (e *CacheEntry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Cache is a cache backend. Get returns ErrCacheKeyNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// TagInvalidator is implemented by backends that can drop every entry
// carrying a tag.
type TagInvalidator interface {
	InvalidateTag(ctx context.Context, tag string) error
}

// CacheOptions are backend-independent cache settings.
type CacheOptions struct {
	// TTL is the lifetime of stored entries. Zero means no expiry.
	TTL time.Duration
	// Tags derives invalidation tags from a request.
	Tags TagFunc
}

// DefaultCacheOptions returns the default cache options.
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		TTL:  constants.DefaultCacheTTL,
		Tags: ResourceTags,
	}
}

// TagFunc derives invalidation tags from a request.
type TagFunc func(req *Request) []string

// ResourceTags tags a request with the resource it targets.
func ResourceTags(req *Request) []string {
	if req.Resource == "" {
		return nil
	}

	return []string{constants.ResourceTagPrefix + req.Resource}
}

// NoTags derives no tags.
func NoTags(*Request) []string {
	return nil
}

// RequestKey is the canonical fingerprint of a request: a SHA-1 over method,
// scheme, host, path and query string. The query is encoded with sorted keys
// when the request is built, so insertion order never changes the key. The
// queue-name fragment is not part of the key.
func RequestKey(req *Request) string {
	var buf bytes.Buffer

	buf.WriteString(req.Method)
	buf.WriteByte('~')
	buf.WriteString(req.URL.Scheme)
	buf.WriteByte('~')
	buf.WriteString(req.URL.Host)
	buf.WriteByte('~')
	buf.WriteString(req.URL.EscapedPath())
	buf.WriteByte('~')
	buf.WriteString(req.URL.RawQuery)

	sum := sha1.Sum(buf.Bytes()) //nolint:gosec // fingerprint only

	return hex.EncodeToString(sum[:])
}

// Fallback maps a freshly executed response into a result.
type Fallback func(resp *Response, req *Request) (*Result, error)

// RequestCache runs requests through a cache backend: cache-or-fetch for
// immediate calls, read-only peeks and direct saves for batches.
type RequestCache struct {
	backend   Cache
	ttl       time.Duration
	tags      TagFunc
	transport Transport
	group     singleflight.Group
	metrics   *MetricsCollector
	logger    Logger
}

// RequestCacheOption configures a RequestCache.
type RequestCacheOption func(*RequestCache)

// WithCacheTTL sets the lifetime of stored results.
func WithCacheTTL(ttl time.Duration) RequestCacheOption {
	return func(c *RequestCache) {
		c.ttl = ttl
	}
}

// WithCacheTags sets the tag derivation function.
func WithCacheTags(tags TagFunc) RequestCacheOption {
	return func(c *RequestCache) {
		if tags != nil {
			c.tags = tags
		}
	}
}

// WithCacheMetrics records hits, misses and writes.
func WithCacheMetrics(metrics *MetricsCollector) RequestCacheOption {
	return func(c *RequestCache) {
		c.metrics = metrics
	}
}

// WithCacheLogger sets the logger used for backend failures.
func WithCacheLogger(logger Logger) RequestCacheOption {
	return func(c *RequestCache) {
		c.logger = loggerOrNop(logger)
	}
}

// NewRequestCache wraps a backend. A nil backend behaves as NoOpCache.
func NewRequestCache(backend Cache, opts ...RequestCacheOption) *RequestCache {
	if backend == nil {
		backend = NewNoOpCache()
	}

	cache := &RequestCache{
		backend: backend,
		tags:    ResourceTags,
		logger:  nopLogger{},
	}

	if _, ok := backend.(*NoOpCache); ok {
		cache.tags = NoTags
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// SetTransport sets the transport used by Run.
func (c *RequestCache) SetTransport(transport Transport) *RequestCache {
	c.transport = transport

	return c
}

// Backend returns the underlying cache backend.
func (c *RequestCache) Backend() Cache {
	return c.backend
}

// Key returns the fingerprint of a request.
func (c *RequestCache) Key(req *Request) string {
	return RequestKey(req)
}

// Tags returns the invalidation tags of a request.
func (c *RequestCache) Tags(req *Request) []string {
	return c.tags(req)
}

// Run executes the request and maps it through fallback. When enabled is
// false the cache is neither read nor written. Otherwise a hit is returned
// without touching the transport, and a miss is executed, stored and returned.
// Concurrent misses on the same key share one execution.
func (c *RequestCache) Run(ctx context.Context, req *Request, fallback Fallback, enabled bool) (*Result, error) {
	if !enabled {
		return c.execute(ctx, req, fallback)
	}

	key := c.Key(req)

	if result := c.lookup(ctx, key); result != nil {
		c.metrics.RecordCacheHit(req.Method)

		return result, nil
	}

	c.metrics.RecordCacheMiss(req.Method)

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := c.execute(ctx, req, fallback)
		if err != nil {
			return nil, err
		}

		c.store(ctx, req, key, result)

		return result, nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already mapped by the fallback
	}

	result, _ := value.(*Result)

	return result, nil
}

func (c *RequestCache) execute(ctx context.Context, req *Request, fallback Fallback) (*Result, error) {
	if c.transport == nil {
		return nil, ErrNoTransport
	}

	resp, err := c.transport.Execute(ctx, req)
	if resp == nil {
		if err == nil {
			err = ErrEmptyBody
		}

		return nil, &TransportError{Method: req.Method, URL: req.EffectiveURL(), Err: err}
	}

	return fallback(resp, req)
}

// Peek returns the cached result of a request without executing it, or nil.
func (c *RequestCache) Peek(ctx context.Context, req *Request) *Result {
	return c.lookup(ctx, c.Key(req))
}

// Save stores a result for a request without executing it.
func (c *RequestCache) Save(ctx context.Context, req *Request, result *Result) error {
	return c.store(ctx, req, c.Key(req), result)
}

// Invalidate drops every entry sharing a tag with the request. Backends that
// cannot invalidate by tag only lose the request's own entry.
func (c *RequestCache) Invalidate(ctx context.Context, req *Request) error {
	tags := c.Tags(req)

	invalidator, ok := c.backend.(TagInvalidator)
	if !ok || len(tags) == 0 {
		err := c.backend.Delete(ctx, c.Key(req))
		if err != nil {
			return fmt.Errorf("deleting cache entry: %w", err)
		}

		return nil
	}

	for _, tag := range tags {
		err := invalidator.InvalidateTag(ctx, tag)
		if err != nil {
			return fmt.Errorf("invalidating tag %s: %w", tag, err)
		}
	}

	return nil
}

func (c *RequestCache) lookup(ctx context.Context, key string) *Result {
	entry, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheKeyNotFound) && !errors.Is(err, ErrCacheDisabled) && !errors.Is(err, ErrCacheEntryExpired) {
			c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}

		return nil
	}

	if entry == nil || len(entry.Data) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(entry.Data))
	decoder.UseNumber()

	var result Result

	err = decoder.Decode(&result)
	if err != nil {
		c.logger.Warn("cache entry is not decodable", map[string]interface{}{"key": key, "error": err.Error()})

		return nil
	}

	if result.Headers == nil {
		result.Headers = make(http.Header)
	}

	return &result
}

func (c *RequestCache) store(ctx context.Context, req *Request, key string, result *Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	entry := &CacheEntry{
		Data: data,
		Tags: c.Tags(req),
	}

	if c.ttl > 0 {
		entry.ExpiresAt = time.Now().Add(c.ttl)
	}

	err = c.backend.Set(ctx, key, entry)
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})

		return fmt.Errorf("writing cache entry: %w", err)
	}

	c.metrics.RecordCacheWrite(req.Method)

	return nil
}
