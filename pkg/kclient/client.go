// Package kclient provides the main entry point for creating Komparu API clients
package kclient

import (
	"fmt"
	"strings"

	"github.com/komparu/komparu-go/internal/client"
	"github.com/komparu/komparu-go/internal/constants"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// New creates a new Komparu API client from config. The config is copied, so
// later changes to it do not affect the client.
func New(config *komparu.Config) (komparu.Client, error) {
	if config == nil {
		return nil, komparu.ErrConfigRequired
	}

	normalized := *config
	normalized.BaseURL = NormalizeURL(config.BaseURL)

	// Use the internal client implementation
	cli, err := client.New(&normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return cli, nil
}

// NormalizeURL trims trailing slashes and prepends http:// when the URL has
// no scheme. An empty URL yields the default API root.
func NormalizeURL(raw string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(raw), "/")
	if endpoint == "" {
		return constants.DefaultBaseURL
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = constants.DefaultScheme + endpoint
	}

	return endpoint
}

// NewWithEndpoint creates a new client with just an API root (no auth).
func NewWithEndpoint(endpoint string) (komparu.Client, error) {
	return New(&komparu.Config{
		BaseURL: endpoint,
	})
}

// NewWithToken creates a new client with an API root, an auth domain and a token.
func NewWithToken(endpoint, domain, token string) (komparu.Client, error) {
	return New(&komparu.Config{
		BaseURL:    endpoint,
		AuthDomain: domain,
		Token:      token,
	})
}
