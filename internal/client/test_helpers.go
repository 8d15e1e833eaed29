package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// Route is a canned response served by TestServer.
type Route struct {
	Status int
	Body   any
	Raw    string
	Delay  time.Duration
}

// RecordedRequest is a request received by TestServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// JSON decodes the recorded body.
func (r RecordedRequest) JSON() map[string]any {
	var out map[string]any

	_ = json.Unmarshal(r.Body, &out)

	return out
}

// TestServer serves canned routes keyed by "METHOD /path" and records every
// request it receives. Unknown routes answer 404.
type TestServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]Route
	requests []RecordedRequest
}

// NewTestServer starts a server that is closed when the test ends.
func NewTestServer(t testing.TB, routes map[string]Route) *TestServer {
	t.Helper()

	server := &TestServer{routes: routes}
	server.Server = httptest.NewServer(http.HandlerFunc(server.serve))

	t.Cleanup(server.Close)

	return server
}

func (s *TestServer) serve(writer http.ResponseWriter, request *http.Request) {
	body, _ := io.ReadAll(request.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: request.Method,
		Path:   request.URL.Path,
		Query:  request.URL.Query(),
		Header: request.Header.Clone(),
		Body:   body,
	})
	route, ok := s.routes[request.Method+" "+request.URL.Path]
	s.mu.Unlock()

	if !ok {
		route = Route{Status: http.StatusNotFound, Body: map[string]any{"message": "not found"}}
	}

	if route.Delay > 0 {
		time.Sleep(route.Delay)
	}

	if route.Status == 0 {
		route.Status = http.StatusOK
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(route.Status)

	switch {
	case route.Raw != "":
		_, _ = writer.Write([]byte(route.Raw))
	case route.Body != nil:
		_ = json.NewEncoder(writer).Encode(route.Body)
	}
}

// SetRoute adds or replaces a route.
func (s *TestServer) SetRoute(key string, route Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.routes[key] = route
}

// Requests returns the recorded requests in arrival order.
func (s *TestServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]RecordedRequest(nil), s.requests...)
}

// Hits counts recorded requests for "METHOD /path".
func (s *TestServer) Hits(key string) int {
	count := 0

	for _, req := range s.Requests() {
		if req.Method+" "+req.Path == key {
			count++
		}
	}

	return count
}

// Last returns the most recent request for "METHOD /path".
func (s *TestServer) Last(t testing.TB, key string) RecordedRequest {
	t.Helper()

	requests := s.Requests()
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].Method+" "+requests[i].Path == key {
			return requests[i]
		}
	}

	require.Failf(t, "request not recorded", "no request for %s", key)

	return RecordedRequest{}
}

// NewTestClient creates a client for baseURL with the given cache backend.
func NewTestClient(t testing.TB, baseURL string, cache komparu.Cache) *Client {
	t.Helper()

	client, err := New(&komparu.Config{
		BaseURL:    baseURL,
		AuthDomain: "example.com",
		Token:      "test-token",
		Cache:      cache,
	})
	require.NoError(t, err)

	return client
}
