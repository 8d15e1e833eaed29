package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// mappedFailure carries a failure mapped as data out of the cache fallback,
// so that it is returned to the caller without being stored.
type mappedFailure struct {
	result *komparu.Result
}

func (f *mappedFailure) Error() string {
	return fmt.Sprint(f.result.Error)
}

// send builds a descriptor from the working state and either queues it or
// runs it through the request cache.
//
// Queued with InQueue: the pending snapshot is returned. Queued because batch
// mode is engaged: nil is returned. Immediate: the mapped body is returned,
// or in ErrorsAsData mode {"error": message} for failures. The working state
// is reset afterwards in every case, including a failed build. A failure
// read back from the cache is reported like a fresh one.
func (c *Client) send(ctx context.Context, method, target string, options komparu.RequestOptions, settings komparu.CallSettings) (any, error) {
	headers := options.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}

	for key, values := range c.headers {
		headers[key] = append([]string(nil), values...)
	}

	options.Headers = headers

	defer c.Reset()

	req, err := komparu.NewRequest(method, target, options)
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}

	req.Resource = c.resource
	c.state = komparu.StateSent

	if settings.Queue != "" {
		c.queue.Add(settings.Queue, req.Named(settings.Queue))

		return c.queue.Snapshot(), nil
	}

	if c.queueKey != "" {
		c.queue.Add(c.queueKey, req.Named(c.queueKey))

		return nil, nil //nolint:nilnil // queued requests have no result yet
	}

	mode := settings.Mode
	fallback := func(resp *komparu.Response, req *komparu.Request) (*komparu.Result, error) {
		result, err := c.mapper.Handle(req, resp, mode)
		if err == nil && result.Failed() {
			return nil, &mappedFailure{result: result}
		}

		return result, err
	}

	useCache := settings.Cache && req.Method == http.MethodGet

	result, err := c.cache.Run(ctx, req, fallback, useCache)
	if err != nil {
		failure := &mappedFailure{}
		if errors.As(err, &failure) {
			return map[string]any{"error": failure.result.Error}, nil
		}

		if mode == komparu.ErrorsAsData {
			return map[string]any{"error": err.Error()}, nil
		}

		return nil, err //nolint:wrapcheck // typed API and transport errors are returned as is
	}

	if result.Failed() {
		apiErr := komparu.CachedFailureError(req, result)
		if mode == komparu.ErrorsAsData {
			return map[string]any{"error": apiErr.Error()}, nil
		}

		return nil, apiErr
	}

	if c.invalidateOnWrite && req.Method != http.MethodGet {
		c.invalidate(ctx, req)
	}

	return result.Body, nil
}

func (c *Client) invalidate(ctx context.Context, req *komparu.Request) {
	err := c.cache.Invalidate(ctx, req)
	if err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.EffectiveURL(),
			"resource": req.Resource,
			"error":    err.Error(),
		})
	}
}
