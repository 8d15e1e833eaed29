package komparu

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an API failure.
type ErrorKind string

// Error kinds produced by the response mapper.
const (
	KindUnauthorized   ErrorKind = "unauthorized"
	KindNotFound       ErrorKind = "not_found"
	KindRequestTimeout ErrorKind = "request_timeout"
	KindValidation     ErrorKind = "validation"
	KindGeneric        ErrorKind = "generic"
)

// DefaultValidationMessage is used when a 422 body carries no message.
const DefaultValidationMessage = "The request parameters are invalid"

// APIError represents a mapped error response from the API.
type APIError struct {
	Kind    ErrorKind `json:"kind"              yaml:"kind"`
	Status  int       `json:"status"            yaml:"status"`
	Method  string    `json:"method,omitempty"  yaml:"method,omitempty"`
	URL     string    `json:"url,omitempty"     yaml:"url,omitempty"`
	Message string    `json:"message,omitempty" yaml:"message,omitempty"`
	// Errors holds the field errors of a validation failure.
	Errors any    `json:"errors,omitempty" yaml:"errors,omitempty"`
	Body   []byte `json:"-"                yaml:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	text := kindText(e.Kind)
	if e.Method != "" {
		return fmt.Sprintf("%s: %s %s", text, e.Method, e.URL)
	}

	return text
}

// Is matches sentinel errors by kind, and by status when the sentinel sets one.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

func kindText(kind ErrorKind) string {
	switch kind {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "resource not found"
	case KindRequestTimeout:
		return "request timeout"
	case KindValidation:
		return DefaultValidationMessage
	default:
		return "unexpected API response"
	}
}

// Common error types.
var (
	ErrUnauthorized   = &APIError{Kind: KindUnauthorized}
	ErrNotFound       = &APIError{Kind: KindNotFound}
	ErrRequestTimeout = &APIError{Kind: KindRequestTimeout}
	ErrValidation     = &APIError{Kind: KindValidation}
	ErrGeneric        = &APIError{Kind: KindGeneric}
)

// Common static errors that can be wrapped with context.
var (
	ErrMissingResource            = errors.New("must provide a resource")
	ErrConfigRequired             = errors.New("config is required")
	ErrNoTransport                = errors.New("no transport configured")
	ErrCacheDisabled              = errors.New("cache disabled")
	ErrCacheKeyNotFound           = errors.New("key not found")
	ErrCacheEntryExpired          = errors.New("entry expired")
	ErrKeyNotFoundInAnyCache      = errors.New("key not found in any cache")
	ErrTagInvalidationUnsupported = errors.New("cache backend does not support tag invalidation")
	ErrNATSConfigRequired         = errors.New("NATS configuration required for NATS cache")
	ErrSQLiteConfigRequired       = errors.New("SQLite configuration required for SQLite cache")
	ErrUnsupportedCacheType       = errors.New("unsupported cache type")
	ErrInvalidLanguage            = errors.New("invalid language tag")
)

// TransportError is a failure that produced no HTTP response at all, such as
// a refused connection or a cancelled context.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnauthorized checks if the error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRequestTimeout checks if the error is a request timeout error.
func IsRequestTimeout(err error) bool {
	return errors.Is(err, ErrRequestTimeout)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport checks if the error happened below the HTTP layer.
func IsTransport(err error) bool {
	transportErr := &TransportError{}

	return errors.As(err, &transportErr)
}

// ValidationErrors returns the field errors of a validation error, or nil.
func ValidationErrors(err error) any {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) && apiErr.Kind == KindValidation {
		return apiErr.Errors
	}

	return nil
}
