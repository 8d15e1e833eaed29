package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/komparu/komparu-go/pkg/kclient"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// StderrLogger writes log lines as "LEVEL msg key=value ..." to a writer.
type StderrLogger struct {
	mu    sync.Mutex
	out   io.Writer
	debug bool
}

// NewStderrLogger creates a logger on stderr. Debug lines are only written
// when debug is set.
func NewStderrLogger(debug bool) *StderrLogger {
	return &StderrLogger{out: os.Stderr, debug: debug}
}

// Debug logs debug messages.
func (l *StderrLogger) Debug(msg string, fields map[string]interface{}) {
	if l.debug {
		l.write("DEBUG", msg, fields)
	}
}

// Info logs info messages.
func (l *StderrLogger) Info(msg string, fields map[string]interface{}) {
	l.write("INFO", msg, fields)
}

// Warn logs warning messages.
func (l *StderrLogger) Warn(msg string, fields map[string]interface{}) {
	l.write("WARN", msg, fields)
}

// Error logs error messages.
func (l *StderrLogger) Error(msg string, fields map[string]interface{}) {
	l.write("ERROR", msg, fields)
}

func (l *StderrLogger) write(level, msg string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder

	builder.WriteString(time.Now().Format(time.RFC3339))
	builder.WriteByte(' ')
	builder.WriteString(level)
	builder.WriteByte(' ')
	builder.WriteString(msg)

	for _, key := range keys {
		fmt.Fprintf(&builder, " %s=%v", key, fields[key])
	}

	builder.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = io.WriteString(l.out, builder.String())
}

// BuildConfig assembles client configuration from flags, environment and the
// config file.
func BuildConfig(ctx context.Context) (*komparu.Config, error) {
	verbose := viper.GetBool("verbose")

	config := &komparu.Config{
		BaseURL:    viper.GetString("url"),
		AuthDomain: viper.GetString("domain"),
		Token:      viper.GetString("token"),
		Language:   viper.GetString("language"),
		Debug:      verbose,
		Logger:     NewStderrLogger(verbose),
	}

	cacheConfig, err := cacheConfigFromViper()
	if err != nil {
		return nil, err
	}

	cache, err := komparu.NewCacheFromConfig(ctx, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	config.Cache = cache

	return config, nil
}

func cacheConfigFromViper() (*komparu.CacheConfig, error) {
	cacheType := komparu.CacheType(viper.GetString("cache"))

	config := &komparu.CacheConfig{Type: cacheType}

	switch cacheType {
	case komparu.CacheTypeMemory:
		config.Memory = &komparu.MemoryCacheConfig{}
	case komparu.CacheTypeSQLite:
		path := viper.GetString("cache-path")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}

			path = filepath.Join(home, ConfigDirName, "cache.db")
		}

		config.SQLite = &komparu.SQLiteCacheConfig{Path: path}
	case komparu.CacheTypeNATS:
		config.NATS = &komparu.NATSKVConfig{URL: viper.GetString("nats-url")}
	}

	return config, nil
}

// CreateClient builds a client from the current CLI configuration.
func CreateClient(ctx context.Context) (komparu.Client, error) {
	config, err := BuildConfig(ctx)
	if err != nil {
		return nil, err
	}

	client, err := kclient.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}
