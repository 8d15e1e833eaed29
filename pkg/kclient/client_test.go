package kclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komparu/komparu-go/pkg/kclient"
	"github.com/komparu/komparu-go/pkg/komparu"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates client with config", func(t *testing.T) {
		t.Parallel()

		config := &komparu.Config{
			BaseURL: "https://api.example.com/v1",
		}

		client, err := kclient.New(config)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("requires config", func(t *testing.T) {
		t.Parallel()

		client, err := kclient.New(nil)
		require.ErrorIs(t, err, komparu.ErrConfigRequired)
		assert.Nil(t, client)
	})

	t.Run("does not modify config", func(t *testing.T) {
		t.Parallel()

		config := &komparu.Config{BaseURL: "api.example.com/"}

		_, err := kclient.New(config)
		require.NoError(t, err)
		assert.Equal(t, "api.example.com/", config.BaseURL)
	})
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		expected string
	}{
		{raw: "", expected: "http://api.komparu.com/v1"},
		{raw: "https://api.example.com/v1/", expected: "https://api.example.com/v1"},
		{raw: "api.example.com", expected: "http://api.example.com"},
		{raw: " http://localhost:8080// ", expected: "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, kclient.NormalizeURL(tt.raw))
		})
	}
}

func TestNewWithEndpoint(t *testing.T) {
	t.Parallel()

	client, err := kclient.NewWithEndpoint("https://api.example.com")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClientIntegration(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/v1/product/42":
			if request.Header.Get("X-Auth-Token") != "test-token" || request.Header.Get("X-Auth-Domain") != "shop.example.com" {
				writer.WriteHeader(http.StatusUnauthorized)

				return
			}

			writer.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(writer).Encode(map[string]any{"id": 42, "name": "Phone"})
		default:
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := kclient.NewWithToken(server.URL+"/v1/", "shop.example.com", "test-token")
	require.NoError(t, err)

	body, err := client.Resource("product").Show(context.Background(), "42", nil)
	require.NoError(t, err)

	product, err := komparu.DecodeBody[struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}](body)
	require.NoError(t, err)
	assert.Equal(t, 42, product.ID)
	assert.Equal(t, "Phone", product.Name)

	_, err = client.Resource("product").Show(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, komparu.IsNotFound(err))
}
