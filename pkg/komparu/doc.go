// Package komparu provides types, interfaces, and helpers for working with the
// Komparu REST API.
//
// # Overview
//
// The komparu package defines the request descriptor, the response mapper,
// the response cache and the fluent Client interface. A concrete client is
// provided by the kclient package, which wires configuration, transport,
// caching and decorators. Most consumers should import kclient to construct a
// client and then drive it through the Client interface exposed here.
//
// Getting a client
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
//	  cli, err := kclient.New(&komparu.Config{
//	    BaseURL:    "https://api.komparu.com/v1",
//	    AuthDomain: "shop.example.com",
//	    Token:      "secret",
//	    Cache:      komparu.NewMemoryCache(1000),
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  products, err := cli.Resource("product").SetParam("limit", 10).Get(ctx, nil)
//	  if err != nil { log.Fatal(err) }
//	  _ = products
//	}
//
// # Working state
//
// Resource, SetParam, SetParams and Header accumulate state for the next
// request only. Every send resets the working state, so nothing leaks into
// the following call.
//
// # Batching
//
// Requests can be queued under a name and dispatched together:
//
//	err := cli.Queue("phones", func(c komparu.Client) error {
//	  _, err := c.Resource("product").SetParam("type", "phone").Get(ctx, nil)
//	  return err
//	})
//	results := cli.Flush(ctx)
//	_ = results["phones"]
//
// Flush answers cached requests from the cache, dispatches the rest with a
// bounded number in flight and records failures in Result.Error instead of
// failing the batch.
//
// # Errors
//
// Non-success responses are mapped onto APIError values. Helpers such as
// IsNotFound, IsUnauthorized, IsRequestTimeout and IsValidation make it easy
// to branch on them. Calls made with WithErrorMode(ErrorsAsData) return the
// error message as data instead.
//
// # Caching
//
// GET responses can be cached in memory, in a SQLite file or in a NATS
// KeyValue bucket. Keys are derived from the method and the canonical URL, so
// parameter order never matters. Only successful responses are stored.
package komparu
