package client

import (
	"context"
	"maps"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// QueueExecutor holds named pending requests and dispatches them as one
// bounded-concurrency batch.
type QueueExecutor struct {
	transport      komparu.Transport
	cache          *komparu.RequestCache
	mapper         *komparu.ResponseMapper
	maxConcurrency int
	logger         komparu.Logger
	metrics        *komparu.MetricsCollector

	pending komparu.Pending
}

// NewQueueExecutor creates an executor with an empty queue.
func NewQueueExecutor(
	transport komparu.Transport,
	cache *komparu.RequestCache,
	mapper *komparu.ResponseMapper,
	maxConcurrency int,
	logger komparu.Logger,
	metrics *komparu.MetricsCollector,
) *QueueExecutor {
	if logger == nil {
		logger = komparu.NopLogger()
	}

	return &QueueExecutor{
		transport:      transport,
		cache:          cache,
		mapper:         mapper,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		metrics:        metrics,
		pending:        make(komparu.Pending),
	}
}

// Add stores req under name, replacing any earlier request with that name.
func (q *QueueExecutor) Add(name string, req *komparu.Request) {
	q.pending[name] = req
}

// Snapshot returns a copy of the pending queue.
func (q *QueueExecutor) Snapshot() komparu.Pending {
	return maps.Clone(q.pending)
}

// Len returns the number of pending requests.
func (q *QueueExecutor) Len() int {
	return len(q.pending)
}

// Flush empties the queue. Cached requests are answered from the cache; the
// rest are dispatched together. Every name in the queue gets a result, and a
// failing member never fails the flush.
func (q *QueueExecutor) Flush(ctx context.Context) map[string]*komparu.Result {
	pending := q.pending
	q.pending = make(komparu.Pending)

	ready := make(map[string]*komparu.Result, len(pending))
	toDispatch := make([]*komparu.Request, 0, len(pending))

	for name, req := range pending {
		if cached := q.cache.Peek(ctx, req); cached != nil {
			ready[name] = cached

			q.metrics.RecordBatchResult(komparu.BatchOutcomeCached)

			continue
		}

		toDispatch = append(toDispatch, req)
	}

	batchID := uuid.NewString()

	q.logger.Debug("flushing queue", map[string]interface{}{
		"batch_id":   batchID,
		"pending":    len(pending),
		"cached":     len(ready),
		"dispatched": len(toDispatch),
	})

	if len(toDispatch) == 0 {
		return ready
	}

	var mu sync.Mutex

	record := func(req *komparu.Request, result *komparu.Result, outcome string) {
		mu.Lock()
		ready[req.Name] = result
		mu.Unlock()

		q.metrics.RecordBatchResult(outcome)
		q.metrics.BatchRequestFinished()
	}

	handlers := komparu.BatchHandlers{
		OnComplete: func(req *komparu.Request, resp *komparu.Response) {
			result, _ := q.mapper.Handle(req, resp, komparu.ErrorsAsData)

			if req.Method == http.MethodGet && !result.Failed() {
				_ = q.cache.Save(ctx, req, result)
			}

			outcome := komparu.BatchOutcomeSuccess
			if result.Failed() {
				outcome = komparu.BatchOutcomeError
			}

			record(req, result, outcome)
		},
		OnError: func(req *komparu.Request, resp *komparu.Response, err error) {
			if resp == nil {
				q.logger.Error("batch request failed", map[string]interface{}{
					"batch_id": batchID,
					"name":     req.Name,
					"method":   req.Method,
					"url":      req.EffectiveURL(),
					"error":    errorText(err),
				})

				record(req, &komparu.Result{Error: errorText(err)}, komparu.BatchOutcomeError)

				return
			}

			result := &komparu.Result{Error: komparu.ErrorBody(resp), Headers: resp.Headers}

			if req.Method == http.MethodGet && resp.StatusCode == http.StatusUnprocessableEntity {
				_ = q.cache.Save(ctx, req, result)
			}

			record(req, result, komparu.BatchOutcomeError)
		},
	}

	for range toDispatch {
		q.metrics.BatchRequestStarted()
	}

	q.transport.ExecuteAll(ctx, toDispatch, handlers, q.maxConcurrency)

	q.logger.Debug("queue flushed", map[string]interface{}{
		"batch_id": batchID,
		"results":  len(ready),
	})

	return ready
}

func errorText(err error) string {
	if err == nil {
		return "request failed without a response"
	}

	return err.Error()
}
