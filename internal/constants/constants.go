package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// API defaults.
const (
	// DefaultBaseURL is the API root used when no URL is configured.
	DefaultBaseURL = "http://api.komparu.com/v1"

	// DefaultScheme is prepended to configured URLs that carry none.
	DefaultScheme = "http://"

	// AuthPath is the resource used by the authentication call.
	AuthPath = "auth"

	// BulkPath is the path segment appended to a resource for bulk writes.
	BulkPath = "_bulk"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "komparu-go/1.0"
)

// Header names injected on every outgoing request.
const (
	HeaderAuthDomain     = "X-Auth-Domain"
	HeaderAuthToken      = "X-Auth-Token"
	HeaderAcceptLanguage = "Accept-Language"
	HeaderContentType    = "Content-Type"
	HeaderAccept         = "Accept"
	HeaderUserAgent      = "User-Agent"

	// ContentTypeJSON is used for mapping bodies and the Accept header.
	ContentTypeJSON = "application/json"
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Concurrency and batching limits.
const (
	// MaxPoolSize is the ceiling on simultaneous in-flight batch requests.
	MaxPoolSize = 25
)

// Cache defaults.
const (
	// DefaultCacheSize is the maximum number of entries held by the memory cache.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the lifetime of cached responses. Zero means no expiry.
	DefaultCacheTTL = 0

	// DefaultNATSBucket is the KeyValue bucket used by the NATS cache backend.
	DefaultNATSBucket = "komparu_cache"

	// ResourceTagPrefix prefixes the resource tag derived from a request.
	ResourceTagPrefix = "resource:"
)

// Format constants.
const (
	// FormatJSON selects JSON output.
	FormatJSON = "json"

	// FormatYAML selects YAML output.
	FormatYAML = "yaml"

	// FormatTable selects table output.
	FormatTable = "table"
)
