// Package kclient provides the primary entry point for constructing a
// Komparu API client that implements the komparu.Client interface.
//
// It layers configuration, HTTP transport, caching and header decorators on
// top of the interfaces and types defined in the komparu package. Most
// applications should import kclient to build a client, then use the returned
// komparu.Client to address resources.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/komparu/komparu-go/pkg/kclient"
//	  "github.com/komparu/komparu-go/pkg/komparu"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // Minimal: just an API root (no auth).
//	  cli, err := kclient.NewWithEndpoint("api.komparu.com/v1")
//	  if err != nil { log.Fatal(err) }
//
//	  // Or with the auth headers the API expects:
//	  cli, err = kclient.New(&komparu.Config{
//	    BaseURL:    "https://api.komparu.com/v1",
//	    AuthDomain: "shop.example.com",
//	    Token:      "secret",
//	    Language:   "nl-NL",
//	    Cache:      komparu.NewMemoryCache(1000),
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  product, err := cli.Resource("product").Show(ctx, "42", nil)
//	  if err != nil { log.Fatal(err) }
//	  _ = product
//	}
//
// # URLs
//
// The base URL is normalized: trailing slashes are dropped and http:// is
// assumed when no scheme is given. An empty base URL selects the default API
// root.
//
// # Helpers
//
// The package also provides convenience constructors NewWithEndpoint and
// NewWithToken that wrap New with the appropriate configuration.
package kclient
