package komparu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrInvalidURL = errors.New("invalid request URL")
	ErrEmptyBody  = errors.New("empty response body")
)

// RequestOptions carries the per-call pieces merged into a request descriptor.
type RequestOptions struct {
	// Query is encoded canonically into the URL query string.
	Query Params
	// Body is either a mapping (sent as JSON) or a raw []byte/string payload.
	Body any
	// Headers are per-request overrides. They win over decorator headers.
	Headers http.Header
}

// Request is a built request descriptor. The client never mutates a
// descriptor after building it; decorators and the transport work on clones.
type Request struct {
	Method   string
	URL      *url.URL
	Resource string
	// Name is the queue correlation token. It is also carried in URL.Fragment,
	// which keeps otherwise identical queued requests distinct without being
	// sent to the server.
	Name     string
	Query    Params
	Body     any
	Headers  http.Header
	Metadata map[string]interface{}
}

// NewRequest builds a descriptor from a method, an absolute URL and options.
func NewRequest(method, rawURL string, options RequestOptions) (*Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	query := options.Query.Clone()

	if encoded := query.Encode(); encoded != "" {
		if parsed.RawQuery != "" {
			parsed.RawQuery += "&" + encoded
		} else {
			parsed.RawQuery = encoded
		}
	}

	headers := make(http.Header)
	for key, values := range options.Headers {
		headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	body := options.Body
	if m, ok := asParams(body); ok {
		body = m.Clone()
	}

	return &Request{
		Method:  strings.ToUpper(method),
		URL:     parsed,
		Query:   query,
		Body:    body,
		Headers: headers,
	}, nil
}

// Named returns a copy of the request tagged with a queue name.
func (r *Request) Named(name string) *Request {
	clone := r.Clone()
	clone.Name = name
	clone.URL.Fragment = name

	return clone
}

// Clone returns a deep copy of the descriptor.
func (r *Request) Clone() *Request {
	u := *r.URL

	clone := &Request{
		Method:   r.Method,
		URL:      &u,
		Resource: r.Resource,
		Name:     r.Name,
		Query:    r.Query.Clone(),
		Body:     cloneValue(r.Body),
		Headers:  r.Headers.Clone(),
	}

	if clone.Headers == nil {
		clone.Headers = make(http.Header)
	}

	if r.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(r.Metadata))
		for key, value := range r.Metadata {
			clone.Metadata[key] = value
		}
	}

	return clone
}

// EffectiveURL is the URL sent to the server (the fragment is dropped).
func (r *Request) EffectiveURL() string {
	u := *r.URL
	u.Fragment = ""

	return u.String()
}

// Payload encodes the body. Mapping bodies become JSON; raw bodies are sent as is.
func (r *Request) Payload() ([]byte, error) {
	switch body := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case string:
		return []byte(body), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		return data, nil
	}
}

// IsJSON reports whether the payload is JSON encoded by the client.
func (r *Request) IsJSON() bool {
	switch r.Body.(type) {
	case nil, []byte, string:
		return false
	default:
		return true
	}
}

// String returns "METHOD url" for logs and error messages.
func (r *Request) String() string {
	return r.Method + " " + r.EffectiveURL()
}

// Response is a raw transport response.
type Response struct {
	StatusCode   int
	Status       string
	Headers      http.Header
	Body         []byte
	EffectiveURL string
	Duration     time.Duration
	Error        error
}

// JSON decodes the body. Numbers are kept as json.Number.
func (r *Response) JSON() (any, error) {
	return decodeJSON(r.Body)
}

func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBody
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var out any

	err := decoder.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}

	return out, nil
}

// Result is a mapped response: either a success payload with headers, or an
// error value. It is also the value stored in the response cache.
type Result struct {
	Body    any         `json:"body,omitempty"    yaml:"body,omitempty"`
	Headers http.Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Error   any         `json:"error,omitempty"   yaml:"error,omitempty"`
}

// Failed reports whether the result holds an error value.
func (r *Result) Failed() bool {
	return r != nil && r.Error != nil
}

// DecodeBody converts a decoded JSON body into a typed value.
func DecodeBody[T any](body any) (T, error) {
	var out T

	data, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("re-encoding body: %w", err)
	}

	err = json.Unmarshal(data, &out)
	if err != nil {
		return out, fmt.Errorf("decoding body into %T: %w", out, err)
	}

	return out, nil
}
