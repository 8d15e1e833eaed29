package komparu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cache_tags (
	tag TEXT NOT NULL,
	key TEXT NOT NULL,
	PRIMARY KEY (tag, key)
);
CREATE INDEX IF NOT EXISTS cache_tags_key ON cache_tags (key);
`

// SQLiteCacheConfig configures the SQLite cache backend.
type SQLiteCacheConfig struct {
	// Path of the database file. Ignored when DB is set.
	Path string
	// DB reuses an open database handle.
	DB *sql.DB
}

// SQLiteCache stores entries in a SQLite database, which lets a cache survive
// process restarts on a single host.
type SQLiteCache struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteCache opens the database and creates the cache tables.
func NewSQLiteCache(ctx context.Context, config *SQLiteCacheConfig) (*SQLiteCache, error) {
	if config == nil || (config.DB == nil && config.Path == "") {
		return nil, ErrSQLiteConfigRequired
	}

	db := config.DB
	owned := false

	if db == nil {
		var err error

		db, err = sql.Open("sqlite", config.Path)
		if err != nil {
			return nil, fmt.Errorf("opening cache database: %w", err)
		}

		// One writer at a time; batch completions write concurrently.
		db.SetMaxOpenConns(1)

		owned = true
	}

	_, err := db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		if owned {
			_ = db.Close()
		}

		return nil, fmt.Errorf("creating cache tables: %w", err)
	}

	return &SQLiteCache{db: db, owned: owned}, nil
}

// Close closes the database when the cache opened it.
func (c *SQLiteCache) Close() error {
	if !c.owned {
		return nil
	}

	return c.db.Close()
}

// Get returns the entry for key.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	var (
		data      []byte
		expiresAt int64
	)

	err := c.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheKeyNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	entry := &CacheEntry{Data: data}
	if expiresAt > 0 {
		entry.ExpiresAt = time.Unix(0, expiresAt)
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, ErrCacheEntryExpired
	}

	rows, err := c.db.QueryContext(ctx, `SELECT tag FROM cache_tags WHERE key = ? ORDER BY tag`, key)
	if err != nil {
		return nil, fmt.Errorf("reading cache tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string

		err = rows.Scan(&tag)
		if err != nil {
			return nil, fmt.Errorf("scanning cache tag: %w", err)
		}

		entry.Tags = append(entry.Tags, tag)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading cache tags: %w", err)
	}

	return entry, nil
}

// Set stores entry under key, replacing its previous tags.
func (c *SQLiteCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	var expiresAt int64
	if !entry.ExpiresAt.IsZero() {
		expiresAt = entry.ExpiresAt.UnixNano()
	}

	return c.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO cache_entries (key, data, expires_at) VALUES (?, ?, ?)`,
			key, entry.Data, expiresAt)
		if err != nil {
			return fmt.Errorf("writing cache entry: %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("clearing cache tags: %w", err)
		}

		for _, tag := range entry.Tags {
			_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO cache_tags (tag, key) VALUES (?, ?)`, tag, key)
			if err != nil {
				return fmt.Errorf("writing cache tag: %w", err)
			}
		}

		return nil
	})
}

// Delete removes key.
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("deleting cache entry: %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("deleting cache tags: %w", err)
		}

		return nil
	})
}

// Clear removes every entry.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`)
		if err != nil {
			return fmt.Errorf("clearing cache entries: %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cache_tags`)
		if err != nil {
			return fmt.Errorf("clearing cache tags: %w", err)
		}

		return nil
	})
}

// Has reports whether a live entry exists for key.
func (c *SQLiteCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// InvalidateTag removes every entry carrying tag.
func (c *SQLiteCache) InvalidateTag(ctx context.Context, tag string) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key IN (SELECT key FROM cache_tags WHERE tag = ?)`, tag)
		if err != nil {
			return fmt.Errorf("deleting tagged entries: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM cache_tags WHERE key NOT IN (SELECT key FROM cache_entries)`)
		if err != nil {
			return fmt.Errorf("deleting orphaned tags: %w", err)
		}

		return nil
	})
}

func (c *SQLiteCache) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cache transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing cache transaction: %w", err)
	}

	return nil
}
