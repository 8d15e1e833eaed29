package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/komparu/komparu-go/internal/constants"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// Authenticate posts credentials to <base>/auth.
func (c *Client) Authenticate(ctx context.Context, username, password string) (any, error) {
	authURL := strings.TrimRight(c.baseURL, "/") + "/" + constants.AuthPath

	return c.send(ctx, http.MethodPost, authURL, komparu.RequestOptions{
		Body: komparu.Params{"username": username, "password": password},
	}, callSettings(false, nil))
}

// Get lists the current resource. Parameters are merged into the query.
func (c *Client) Get(ctx context.Context, query komparu.Params, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL()
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodGet, target, komparu.RequestOptions{
		Query: komparu.Merge(c.params, query),
	}, callSettings(true, opts))
}

// GetSkipCache is Get with the response cache disabled.
func (c *Client) GetSkipCache(ctx context.Context, query komparu.Params, opts ...komparu.CallOption) (any, error) {
	return c.Get(ctx, query, append(opts, komparu.SkipCache())...)
}

// QueueGet queues a Get with no extra query under name.
func (c *Client) QueueGet(ctx context.Context, name string) (any, error) {
	return c.Get(ctx, nil, komparu.InQueue(name))
}

// Show fetches one record of the current resource.
func (c *Client) Show(ctx context.Context, id string, query komparu.Params, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodGet, target, komparu.RequestOptions{
		Query: komparu.Merge(c.params, query),
	}, callSettings(true, opts))
}

// ShowSkipCache is Show with the response cache disabled.
func (c *Client) ShowSkipCache(ctx context.Context, id string, query komparu.Params, opts ...komparu.CallOption) (any, error) {
	return c.Show(ctx, id, query, append(opts, komparu.SkipCache())...)
}

// Store creates a record. Mapping bodies are merged over the parameters;
// raw bodies are sent as given.
func (c *Client) Store(ctx context.Context, body any, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL()
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodPost, target, komparu.RequestOptions{
		Body: c.mergeBody(body),
	}, callSettings(false, opts))
}

// Update replaces the record with the given id.
func (c *Client) Update(ctx context.Context, id string, body any, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodPut, target, komparu.RequestOptions{
		Body: c.mergeBody(body),
	}, callSettings(true, opts))
}

// Upsert looks up records matching unique, asks resolve for the id of an
// existing one, then updates that record or stores a new one. The resource
// and parameters set before the call are restored for the write. The lookup
// bypasses the cache and the queue.
func (c *Client) Upsert(ctx context.Context, unique, body komparu.Params, resolve komparu.IDResolver) (any, error) {
	resource := c.resource
	params := c.params.Clone()
	headers := c.headers.Clone()
	queueKey := c.queueKey

	c.queueKey = ""

	result, err := c.GetSkipCache(ctx, unique)

	c.queueKey = queueKey

	if err != nil {
		return nil, fmt.Errorf("looking up existing record: %w", err)
	}

	id, found := resolve(result)

	c.resource = resource
	c.params = params
	c.headers = headers
	c.building()

	if found && id != "" {
		return c.Update(ctx, id, body)
	}

	return c.Store(ctx, body)
}

// Delete removes the record with the given id. Parameters are sent in the body.
func (c *Client) Delete(ctx context.Context, id string, body komparu.Params, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodDelete, target, komparu.RequestOptions{
		Body: komparu.Merge(c.params, body),
	}, callSettings(true, opts))
}

// Options describes the current resource.
func (c *Client) Options(ctx context.Context, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL()
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodOptions, target, komparu.RequestOptions{}, callSettings(true, opts))
}

// Copy duplicates the record with the given id. Parameters go in the query.
func (c *Client) Copy(ctx context.Context, id string, query komparu.Params, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	return c.send(ctx, "COPY", target, komparu.RequestOptions{
		Query: komparu.Merge(c.params, query),
	}, callSettings(true, opts))
}

// Patch partially updates the record with the given id.
func (c *Client) Patch(ctx context.Context, id string, body komparu.Params, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodPatch, target, komparu.RequestOptions{
		Body: komparu.Merge(c.params, body),
	}, callSettings(true, opts))
}

// Bulk posts items to <resource>/_bulk as {"bulk": items}.
func (c *Client) Bulk(ctx context.Context, items []any, opts ...komparu.CallOption) (any, error) {
	target, err := c.resourceURL(constants.BulkPath)
	if err != nil {
		return nil, err
	}

	return c.send(ctx, http.MethodPost, target, komparu.RequestOptions{
		Body: komparu.Merge(c.params, komparu.Params{"bulk": items}),
	}, callSettings(true, opts))
}

// Send issues a request to an arbitrary URL through the same cache, queue and
// mapping path as the verbs.
func (c *Client) Send(ctx context.Context, method, target string, options komparu.RequestOptions, opts ...komparu.CallOption) (any, error) {
	return c.send(ctx, method, target, options, callSettings(true, opts))
}

func (c *Client) mergeBody(body any) any {
	switch value := body.(type) {
	case nil:
		return c.params.Clone()
	case komparu.Params:
		return komparu.Merge(c.params, value)
	case map[string]any:
		return komparu.Merge(c.params, value)
	default:
		return body
	}
}

func callSettings(cache bool, opts []komparu.CallOption) komparu.CallSettings {
	settings := komparu.CallSettings{Cache: cache, Mode: komparu.RaiseErrors}

	for _, opt := range opts {
		opt(&settings)
	}

	return settings
}
