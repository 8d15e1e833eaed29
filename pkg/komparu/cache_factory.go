package komparu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/komparu/komparu-go/internal/constants"
)

// CacheType names a cache backend.
type CacheType string

const (
	// CacheTypeMemory keeps entries in process.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS stores entries in a NATS KeyValue bucket.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeSQLite represents a SQLite file cache.
	CacheTypeSQLite CacheType = "sqlite"

	// CacheTypeNone disables caching.
	CacheTypeNone CacheType = "none"
)

// CacheConfig selects and configures a response cache backend.
type CacheConfig struct {
	// Type is the cache backend type
	Type CacheType

	// Memory cache configuration
	Memory *MemoryCacheConfig

	// NATS KV cache configuration
	NATS *NATSKVConfig

	// SQLite cache configuration
	SQLite *SQLiteCacheConfig

	// Common options applied to any backend. If nil, DefaultCacheOptions() is used.
	Options *CacheOptions
}

// MemoryCacheConfig configures the in-process LRU backend.
type MemoryCacheConfig struct {
	// MaxSize is the maximum number of items in the cache
	MaxSize int

	// CleanupInterval is the interval for cleaning up expired entries
	CleanupInterval string // Duration string like "1m", "5s"
}

// DefaultCacheConfig returns an in-memory configuration with the default size.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type: CacheTypeMemory,
		Memory: &MemoryCacheConfig{
			MaxSize:         constants.DefaultCacheSize,
			CleanupInterval: "1m",
		},
		Options: DefaultCacheOptions(),
	}
}

// NewCacheFromConfig opens the backend selected by config. A nil config
// yields the default in-memory backend.
func NewCacheFromConfig(ctx context.Context, config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	switch config.Type {
	case CacheTypeMemory:
		return NewMemoryCacheFromConfig(ctx, config.Memory)

	case CacheTypeNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		return NewNATSKVCache(ctx, config.NATS)

	case CacheTypeSQLite:
		if config.SQLite == nil {
			return nil, ErrSQLiteConfigRequired
		}

		return NewSQLiteCache(ctx, config.SQLite)

	case CacheTypeNone, "":
		return NewNoOpCache(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

// NewMemoryCacheFromConfig creates a memory cache from configuration. A valid
// CleanupInterval starts a janitor that stops when ctx is done.
func NewMemoryCacheFromConfig(ctx context.Context, config *MemoryCacheConfig) (Cache, error) {
	if config == nil {
		config = &MemoryCacheConfig{
			MaxSize:         constants.DefaultCacheSize,
			CleanupInterval: "1m",
		}
	}

	cache := NewMemoryCache(config.MaxSize)

	if config.CleanupInterval != "" {
		interval, err := time.ParseDuration(config.CleanupInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing cleanup interval: %w", err)
		}

		if interval > 0 {
			go cache.StartJanitor(ctx, interval)
		}
	}

	return cache, nil
}

// NoOpCache never stores anything.
type NoOpCache struct{}

// NewNoOpCache returns the disabled backend.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always misses.
func (c *NoOpCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	return nil, ErrCacheDisabled
}

// Set does nothing.
func (c *NoOpCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Clear does nothing.
func (c *NoOpCache) Clear(ctx context.Context) error {
	return nil
}

// Has reports false.
func (c *NoOpCache) Has(ctx context.Context, key string) bool {
	return false
}

// CacheBuilder assembles a CacheConfig step by step.
type CacheBuilder struct {
	config *CacheConfig
}

// NewCacheBuilder starts from DefaultCacheConfig.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{
		config: &CacheConfig{
			Type:    CacheTypeMemory,
			Options: DefaultCacheOptions(),
		},
	}
}

// WithType selects the backend.
func (b *CacheBuilder) WithType(cacheType CacheType) *CacheBuilder {
	b.config.Type = cacheType

	return b
}

// WithMemoryConfig configures the in-memory backend.
func (b *CacheBuilder) WithMemoryConfig(maxSize int, cleanupInterval string) *CacheBuilder {
	b.config.Memory = &MemoryCacheConfig{
		MaxSize:         maxSize,
		CleanupInterval: cleanupInterval,
	}

	return b
}

// WithNATSConfig configures the NATS KeyValue backend.
func (b *CacheBuilder) WithNATSConfig(config *NATSKVConfig) *CacheBuilder {
	b.config.NATS = config

	return b
}

// WithSQLiteConfig sets SQLite cache configuration.
func (b *CacheBuilder) WithSQLiteConfig(config *SQLiteCacheConfig) *CacheBuilder {
	b.config.SQLite = config

	return b
}

// WithOptions replaces the backend-independent options.
func (b *CacheBuilder) WithOptions(options *CacheOptions) *CacheBuilder {
	b.config.Options = options

	return b
}

// Build creates the cache backend from the configuration.
func (b *CacheBuilder) Build(ctx context.Context) (Cache, error) {
	return NewCacheFromConfig(ctx, b.config)
}

// BuildRequestCache creates a RequestCache over the configured backend.
func (b *CacheBuilder) BuildRequestCache(ctx context.Context, opts ...RequestCacheOption) (*RequestCache, error) {
	backend, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	options := b.config.Options
	if options == nil {
		options = DefaultCacheOptions()
	}

	all := append([]RequestCacheOption{WithCacheTTL(options.TTL), WithCacheTags(options.Tags)}, opts...)

	return NewRequestCache(backend, all...), nil
}

// CacheChain layers backends, fastest first. A hit in a later layer is
// copied back into the earlier ones.
type CacheChain struct {
	caches []Cache
}

// NewCacheChain layers caches in the given order.
func NewCacheChain(caches ...Cache) *CacheChain {
	return &CacheChain{
		caches: caches,
	}
}

// Get returns the entry from the first layer that has it.
func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for i, cache := range c.caches {
		entry, err := cache.Get(ctx, key)
		if err == nil {
			// back-fill the faster layers
			for j := range i {
				_ = c.caches[j].Set(ctx, key, entry)
			}

			return entry, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrCacheKeyNotFound, ErrKeyNotFoundInAnyCache)
}

// Set writes entry to every layer.
func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	var errs []error

	for _, cache := range c.caches {
		err := cache.Set(ctx, key, entry)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Delete removes key from every layer.
func (c *CacheChain) Delete(ctx context.Context, key string) error {
	var errs []error

	for _, cache := range c.caches {
		err := cache.Delete(ctx, key)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Clear empties every layer.
func (c *CacheChain) Clear(ctx context.Context) error {
	var errs []error

	for _, cache := range c.caches {
		err := cache.Clear(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Has reports whether any layer holds key.
func (c *CacheChain) Has(ctx context.Context, key string) bool {
	for _, cache := range c.caches {
		if cache.Has(ctx, key) {
			return true
		}
	}

	return false
}

// InvalidateTag drops a tag from every layer that supports it.
func (c *CacheChain) InvalidateTag(ctx context.Context, tag string) error {
	var errs []error

	supported := false

	for _, cache := range c.caches {
		invalidator, ok := cache.(TagInvalidator)
		if !ok {
			continue
		}

		supported = true

		err := invalidator.InvalidateTag(ctx, tag)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !supported {
		return ErrTagInvalidationUnsupported
	}

	return errors.Join(errs...)
}
