package client_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/komparu/komparu-go/internal/client"
	"github.com/komparu/komparu-go/pkg/komparu"
)

func TestNew(t *testing.T) {
	t.Parallel()
	t.Run("requires base URL", func(t *testing.T) {
		t.Parallel()

		_, err := New(&komparu.Config{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBaseURLRequired)
	})

	t.Run("starts idle on the default resource", func(t *testing.T) {
		t.Parallel()

		client, err := New(&komparu.Config{BaseURL: "http://api.example.com/v1", DefaultResource: "product"})
		require.NoError(t, err)
		assert.Equal(t, komparu.StateIdle, client.State())
		assert.False(t, client.IsUsingQueue())
		assert.Empty(t, client.Pending())
		assert.NotNil(t, client.Cache())
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_WorkingState(t *testing.T) {
	t.Parallel()
	t.Run("setters move idle to building and send resets", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		client.Resource("product").SetParam("limit", 10)
		assert.Equal(t, komparu.StateBuilding, client.State())

		_, err := client.Get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, komparu.StateIdle, client.State())

		_, err = client.Get(context.Background(), nil)
		require.ErrorIs(t, err, komparu.ErrMissingResource)
	})

	t.Run("same parameter twice keeps the last value", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").
			SetParam("limit", 5).
			SetParam("limit", 20).
			Get(context.Background(), nil)
		require.NoError(t, err)

		assert.Equal(t, "20", server.Last(t, "GET /product").Query.Get("limit"))
	})

	t.Run("parameters do not leak into the next call", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product":  {Body: []any{}},
			"GET /provider": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").SetParam("limit", 5).Header("X-Trace", "1").Get(context.Background(), nil)
		require.NoError(t, err)

		_, err = client.Resource("provider").Get(context.Background(), nil)
		require.NoError(t, err)

		last := server.Last(t, "GET /provider")
		assert.Empty(t, last.Query.Get("limit"))
		assert.Empty(t, last.Header.Get("X-Trace"))
	})

	t.Run("missing resource fails before any request", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Show(context.Background(), "1", nil)
		require.ErrorIs(t, err, komparu.ErrMissingResource)
		assert.Equal(t, "must provide a resource", err.Error())
		assert.Empty(t, server.Requests())
	})

	t.Run("failed request build still resets", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /provider": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.SetURL("relative/v1").
			Resource("product").
			SetParam("limit", 5).
			Header("X-Trace", "1").
			Get(context.Background(), nil)
		require.ErrorIs(t, err, komparu.ErrInvalidURL)
		assert.Equal(t, komparu.StateIdle, client.State())

		_, err = client.SetURL(server.URL).Resource("provider").Get(context.Background(), nil)
		require.NoError(t, err)

		last := server.Last(t, "GET /provider")
		assert.Empty(t, last.Query.Get("limit"))
		assert.Empty(t, last.Header.Get("X-Trace"))
	})

	t.Run("reset returns to the default resource", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})

		client, err := New(&komparu.Config{BaseURL: server.URL, DefaultResource: "product"})
		require.NoError(t, err)

		client.Resource("provider").Reset()

		_, err = client.Get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, server.Hits("GET /product"))
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Headers(t *testing.T) {
	t.Parallel()
	t.Run("configured decorators are sent on every request", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})

		client, err := New(&komparu.Config{
			BaseURL:    server.URL,
			AuthDomain: "shop.example.com",
			Token:      "secret",
			Language:   "nl-nl",
		})
		require.NoError(t, err)

		_, err = client.Resource("product").Get(context.Background(), nil)
		require.NoError(t, err)

		header := server.Last(t, "GET /product").Header
		assert.Equal(t, "shop.example.com", header.Get("X-Auth-Domain"))
		assert.Equal(t, "secret", header.Get("X-Auth-Token"))
		assert.Equal(t, "nl-NL", header.Get("Accept-Language"))
	})

	t.Run("later setters win", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		client.SetToken("second").SetDomain("other.example.com")

		_, err := client.Resource("product").Get(context.Background(), nil)
		require.NoError(t, err)

		header := server.Last(t, "GET /product").Header
		assert.Equal(t, "second", header.Get("X-Auth-Token"))
		assert.Equal(t, "other.example.com", header.Get("X-Auth-Domain"))
	})

	t.Run("per-request header overrides decorators", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").Header("X-Auth-Domain", "override.example.com").Get(context.Background(), nil)
		require.NoError(t, err)

		assert.Equal(t, "override.example.com", server.Last(t, "GET /product").Header.Get("X-Auth-Domain"))
	})

	t.Run("unparsable language is sent verbatim", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Body: []any{}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.SetLanguage("not a language!").Resource("product").Get(context.Background(), nil)
		require.NoError(t, err)

		assert.Equal(t, "not a language!", server.Last(t, "GET /product").Header.Get("Accept-Language"))
	})

	t.Run("set URL retargets requests", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /v2/product": {Body: []any{}},
		})
		client := NewTestClient(t, "http://unused.invalid", nil)

		_, err := client.SetURL(server.URL + "/v2/").Resource("product").Get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, server.Hits("GET /v2/product"))
	})
}

func TestClient_Authenticate(t *testing.T) {
	t.Parallel()

	server := NewTestServer(t, map[string]Route{
		"POST /auth": {Body: map[string]any{"token": "issued"}},
	})
	client := NewTestClient(t, server.URL, nil)

	result, err := client.Authenticate(context.Background(), "jane", "hunter2")
	require.NoError(t, err)

	body, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "issued", body["token"])

	sent := server.Last(t, "POST /auth").JSON()
	assert.Equal(t, "jane", sent["username"])
	assert.Equal(t, "hunter2", sent["password"])
	assert.Equal(t, http.MethodPost, server.Last(t, "POST /auth").Method)
}
