package komparu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/komparu/komparu-go/internal/constants"
)

const (
	natsEntryPrefix = "entry."
	natsTagPrefix   = "tag."
)

// NATSKVConfig configures the NATS JetStream KeyValue cache backend.
type NATSKVConfig struct {
	// URL of the NATS server. Ignored when Conn is set.
	URL string
	// Bucket name. Created when missing.
	Bucket string
	// TTL applied by the bucket itself. Zero means entries never age out.
	TTL time.Duration
	// Conn reuses an existing connection.
	Conn *nats.Conn
	// Options are passed to nats.Connect.
	Options []nats.Option
}

// NATSKVCache stores entries in a NATS KeyValue bucket. Tags are kept as
// marker keys "tag.<tag>.<key>" so a tag can be invalidated with one watch.
type NATSKVCache struct {
	conn  *nats.Conn
	owned bool
	kv    nats.KeyValue
}

// NewNATSKVCache connects to NATS and opens (or creates) the bucket.
func NewNATSKVCache(ctx context.Context, config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil {
		return nil, ErrNATSConfigRequired
	}

	conn := config.Conn
	owned := false

	if conn == nil {
		url := config.URL
		if url == "" {
			url = nats.DefaultURL
		}

		var err error

		conn, err = nats.Connect(url, config.Options...)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}

		owned = true
	}

	js, err := conn.JetStream()
	if err != nil {
		closeOwned(conn, owned)

		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = constants.DefaultNATSBucket
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "komparu response cache",
			TTL:         config.TTL,
		})
	}

	if err != nil {
		closeOwned(conn, owned)

		return nil, fmt.Errorf("opening KV bucket %s: %w", bucket, err)
	}

	select {
	case <-ctx.Done():
		closeOwned(conn, owned)

		return nil, fmt.Errorf("opening NATS cache: %w", ctx.Err())
	default:
	}

	return &NATSKVCache{conn: conn, owned: owned, kv: kv}, nil
}

func closeOwned(conn *nats.Conn, owned bool) {
	if owned {
		conn.Close()
	}
}

// Close closes the connection when the cache opened it.
func (c *NATSKVCache) Close() {
	closeOwned(c.conn, c.owned)
}

// Get returns the entry for key.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	kvEntry, err := c.kv.Get(natsEntryPrefix + key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrCacheKeyNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s from NATS: %w", key, err)
	}

	var entry CacheEntry

	err = json.Unmarshal(kvEntry.Value(), &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding NATS entry %s: %w", key, err)
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, ErrCacheEntryExpired
	}

	return &entry, nil
}

// Set stores entry under key together with its tag markers.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding NATS entry %s: %w", key, err)
	}

	_, err = c.kv.Put(natsEntryPrefix+key, data)
	if err != nil {
		return fmt.Errorf("writing %s to NATS: %w", key, err)
	}

	for _, tag := range entry.Tags {
		_, err = c.kv.Put(natsTagKey(tag, key), []byte(key))
		if err != nil {
			return fmt.Errorf("writing tag %s to NATS: %w", tag, err)
		}
	}

	return nil
}

// Delete removes key.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(natsEntryPrefix + key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from NATS: %w", key, err)
	}

	return nil
}

// Clear removes every entry and tag marker in the bucket.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("listing NATS keys: %w", err)
	}

	for _, key := range keys {
		err = c.kv.Delete(key)
		if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("deleting %s from NATS: %w", key, err)
		}
	}

	return nil
}

// Has reports whether an entry exists for key.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// InvalidateTag removes every entry carrying tag.
func (c *NATSKVCache) InvalidateTag(ctx context.Context, tag string) error {
	prefix := natsTagPrefix + natsToken(tag) + "."

	watcher, err := c.kv.Watch(prefix+"*", nats.MetaOnly(), nats.IgnoreDeletes())
	if err != nil {
		return fmt.Errorf("watching tag %s: %w", tag, err)
	}

	defer func() { _ = watcher.Stop() }()

	var markers []string

collect:
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("invalidating tag %s: %w", tag, ctx.Err())
		case kvEntry := <-watcher.Updates():
			if kvEntry == nil {
				break collect
			}

			markers = append(markers, kvEntry.Key())
		}
	}

	for _, marker := range markers {
		err = c.Delete(ctx, strings.TrimPrefix(marker, prefix))
		if err != nil {
			return err
		}

		err = c.kv.Delete(marker)
		if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("deleting tag marker %s: %w", marker, err)
		}
	}

	return nil
}

func natsTagKey(tag, key string) string {
	return natsTagPrefix + natsToken(tag) + "." + key
}

// natsToken maps a tag onto the characters allowed in a single KV key token.
func natsToken(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '=':
			return r
		default:
			return '_'
		}
	}, value)
}
