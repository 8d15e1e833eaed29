package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/komparu/komparu-go/internal/client"
	"github.com/komparu/komparu-go/pkg/komparu"
)

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Verbs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		route     string
		call      func(ctx context.Context, c komparu.Client) (any, error)
		wantQuery map[string]string
		wantBody  map[string]any
	}{
		{
			name:  "get merges params into the query",
			route: "GET /product",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").SetParam("limit", 5).Get(ctx, komparu.Params{"offset": 10})
			},
			wantQuery: map[string]string{"limit": "5", "offset": "10"},
		},
		{
			name:  "show targets the id",
			route: "GET /product/42",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Show(ctx, "42", komparu.Params{"lang": "nl"})
			},
			wantQuery: map[string]string{"lang": "nl"},
		},
		{
			name:  "store merges params into the body",
			route: "POST /product",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").SetParam("active", true).Store(ctx, komparu.Params{"name": "loan"})
			},
			wantBody: map[string]any{"active": true, "name": "loan"},
		},
		{
			name:  "update puts to the id",
			route: "PUT /product/7",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Update(ctx, "7", komparu.Params{"name": "mortgage"})
			},
			wantBody: map[string]any{"name": "mortgage"},
		},
		{
			name:  "delete sends params in the body",
			route: "DELETE /product/7",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").SetParam("force", 1).Delete(ctx, "7", nil)
			},
			wantBody: map[string]any{"force": float64(1)},
		},
		{
			name:  "options targets the collection",
			route: "OPTIONS /product",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Options(ctx)
			},
		},
		{
			name:  "copy sends params in the query",
			route: "COPY /product/7",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Copy(ctx, "7", komparu.Params{"target": "staging"})
			},
			wantQuery: map[string]string{"target": "staging"},
		},
		{
			name:  "patch sends params in the body",
			route: "PATCH /product/7",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Patch(ctx, "7", komparu.Params{"price": 10})
			},
			wantBody: map[string]any{"price": float64(10)},
		},
		{
			name:  "bulk posts to _bulk",
			route: "POST /product/_bulk",
			call: func(ctx context.Context, c komparu.Client) (any, error) {
				return c.Resource("product").Bulk(ctx, []any{komparu.Params{"id": "a"}, komparu.Params{"id": "b"}})
			},
			wantBody: map[string]any{"bulk": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := NewTestServer(t, map[string]Route{
				testCase.route: {Body: map[string]any{"ok": true}},
			})
			client := NewTestClient(t, server.URL, nil)

			result, err := testCase.call(context.Background(), client)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"ok": true}, result)

			recorded := server.Last(t, testCase.route)
			for key, value := range testCase.wantQuery {
				assert.Equal(t, value, recorded.Query.Get(key), key)
			}

			if testCase.wantBody != nil {
				assert.Equal(t, testCase.wantBody, recorded.JSON())
				assert.Equal(t, "application/json", recorded.Header.Get("Content-Type"))
			}
		})
	}
}

func TestClient_RawBody(t *testing.T) {
	t.Parallel()

	server := NewTestServer(t, map[string]Route{
		"POST /product": {Body: map[string]any{"id": "1"}},
	})
	client := NewTestClient(t, server.URL, nil)

	_, err := client.Resource("product").SetParam("ignored", true).Store(context.Background(), "<product/>")
	require.NoError(t, err)

	recorded := server.Last(t, "POST /product")
	assert.Equal(t, "<product/>", string(recorded.Body))
	assert.Empty(t, recorded.Header.Get("Content-Type"))
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Upsert(t *testing.T) {
	t.Parallel()

	resolveFirst := func(result any) (string, bool) {
		items, ok := result.([]any)
		if !ok || len(items) == 0 {
			return "", false
		}

		item, _ := items[0].(map[string]any)
		id, ok := item["id"].(json.Number)

		return id.String(), ok
	}

	t.Run("updates the matching record", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product":    {Body: []any{map[string]any{"id": 7, "sku": "A1"}}},
			"PUT /product/7": {Body: map[string]any{"id": 7}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").
			SetParam("channel", "web").
			Upsert(context.Background(), komparu.Params{"sku": "A1"}, komparu.Params{"price": 10}, resolveFirst)
		require.NoError(t, err)

		lookup := server.Last(t, "GET /product")
		assert.Equal(t, "A1", lookup.Query.Get("sku"))
		assert.Equal(t, "web", lookup.Query.Get("channel"))

		write := server.Last(t, "PUT /product/7").JSON()
		assert.Equal(t, "web", write["channel"])
		assert.Equal(t, float64(10), write["price"])
		assert.Equal(t, 0, server.Hits("POST /product"))
	})

	t.Run("stores when nothing matches", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product":  {Body: []any{}},
			"POST /product": {Body: map[string]any{"id": 8}},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").
			SetParam("channel", "web").
			Upsert(context.Background(), komparu.Params{"sku": "B2"}, komparu.Params{"price": 12}, resolveFirst)
		require.NoError(t, err)

		write := server.Last(t, "POST /product").JSON()
		assert.Equal(t, "web", write["channel"])
		assert.Equal(t, float64(12), write["price"])
		assert.Equal(t, 0, server.Hits("PUT /product/8"))
	})

	t.Run("lookup failure is returned", func(t *testing.T) {
		t.Parallel()

		server := NewTestServer(t, map[string]Route{
			"GET /product": {Status: http.StatusUnauthorized},
		})
		client := NewTestClient(t, server.URL, nil)

		_, err := client.Resource("product").Upsert(context.Background(), komparu.Params{"sku": "C3"}, nil, resolveFirst)
		require.Error(t, err)
		assert.True(t, komparu.IsUnauthorized(err))
		assert.Equal(t, 0, server.Hits("POST /product"))
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		route Route
		check func(t *testing.T, result any, err error)
	}{
		{
			name:  "401 is unauthorized",
			route: Route{Status: http.StatusUnauthorized},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				assert.ErrorIs(t, err, komparu.ErrUnauthorized)
			},
		},
		{
			name:  "404 is not found",
			route: Route{Status: http.StatusNotFound},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				assert.True(t, komparu.IsNotFound(err))
			},
		},
		{
			name:  "408 is request timeout",
			route: Route{Status: http.StatusRequestTimeout},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				assert.True(t, komparu.IsRequestTimeout(err))
			},
		},
		{
			name: "422 is validation",
			route: Route{Status: http.StatusUnprocessableEntity, Body: map[string]any{
				"message": "Invalid", "errors": map[string]any{"name": []any{"required"}},
			}},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				require.True(t, komparu.IsValidation(err))
				assert.Equal(t, "Invalid", err.Error())
				assert.Equal(t, map[string]any{"name": []any{"required"}}, komparu.ValidationErrors(err))
			},
		},
		{
			name:  "in-body code on 200 escalates",
			route: Route{Body: map[string]any{"code": 404, "message": "x"}},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				assert.True(t, komparu.IsNotFound(err))
			},
		},
		{
			name:  "500 is generic with method and URL",
			route: Route{Status: http.StatusInternalServerError, Raw: "boom"},
			check: func(t *testing.T, _ any, err error) {
				t.Helper()
				require.ErrorIs(t, err, komparu.ErrGeneric)
				assert.Contains(t, err.Error(), "GET ")
				assert.Contains(t, err.Error(), "/product")
				assert.Contains(t, err.Error(), "boom")
			},
		},
		{
			name:  "204 with an empty body is nil",
			route: Route{Status: http.StatusNoContent},
			check: func(t *testing.T, result any, err error) {
				t.Helper()
				require.NoError(t, err)
				assert.Nil(t, result)
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := NewTestServer(t, map[string]Route{"GET /product": testCase.route})
			client := NewTestClient(t, server.URL, nil)

			result, err := client.Resource("product").Get(context.Background(), nil)
			testCase.check(t, result, err)
			assert.Equal(t, komparu.StateIdle, client.State())
		})
	}
}

func TestClient_ErrorsAsData(t *testing.T) {
	t.Parallel()

	server := NewTestServer(t, map[string]Route{
		"GET /product/1": {Status: http.StatusNotFound},
	})
	client := NewTestClient(t, server.URL, nil)

	result, err := client.Resource("product").Show(context.Background(), "1", nil, komparu.WithErrorMode(komparu.ErrorsAsData))
	require.NoError(t, err)

	body, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, body["error"], "not found")
}

func TestClient_TransportFault(t *testing.T) {
	t.Parallel()

	server := NewTestServer(t, map[string]Route{})
	target := server.URL
	server.Close()

	client := NewTestClient(t, target, nil)

	_, err := client.Resource("product").Get(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, komparu.IsTransport(err))
	assert.Equal(t, komparu.StateIdle, client.State())
}
