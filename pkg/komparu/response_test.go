package komparu_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komparu/komparu-go/pkg/komparu"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	levels := make([]string, 0, len(l.entries))
	for _, entry := range l.entries {
		levels = append(levels, entry.level)
	}

	return levels
}

type recordingRenderer struct {
	calls []*komparu.APIError
}

func (r *recordingRenderer) Render(_ *komparu.Request, _ *komparu.Response, err *komparu.APIError) {
	r.calls = append(r.calls, err)
}

func response(status int, body string) *komparu.Response {
	return &komparu.Response{
		StatusCode:   status,
		Status:       http.StatusText(status),
		Headers:      http.Header{"X-Request-Id": {"abc"}},
		Body:         []byte(body),
		EffectiveURL: "https://api.example.com/v1/product",
	}
}

func TestMapResponse(t *testing.T) { //nolint:funlen
	t.Parallel()

	req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

	tests := []struct {
		name      string
		status    int
		body      string
		expected  any
		errTarget error
	}{
		{name: "ok", status: 200, body: `{"id":1}`, expected: map[string]any{"id": json.Number("1")}},
		{name: "ok list", status: 200, body: `[1,2]`, expected: []any{json.Number("1"), json.Number("2")}},
		{name: "unauthorized", status: 401, body: `{}`, errTarget: komparu.ErrUnauthorized},
		{name: "not found", status: 404, body: ``, errTarget: komparu.ErrNotFound},
		{name: "request timeout", status: 408, body: `whatever`, errTarget: komparu.ErrRequestTimeout},
		{name: "validation", status: 422, body: `{"message":"bad","errors":{"name":["required"]}}`, errTarget: komparu.ErrValidation},
		{name: "validation without json", status: 422, body: `<html>`, errTarget: komparu.ErrGeneric},
		{name: "in-body not found", status: 200, body: `{"code":404,"message":"gone"}`, errTarget: komparu.ErrNotFound},
		{name: "in-body string code", status: 200, body: `{"code":"401","message":"nope"}`, errTarget: komparu.ErrUnauthorized},
		{name: "in-body validation", status: 200, body: `{"code":422,"message":"bad"}`, errTarget: komparu.ErrValidation},
		{name: "code without message", status: 200, body: `{"code":404}`, expected: map[string]any{"code": json.Number("404")}},
		{name: "other in-body code", status: 200, body: `{"code":500,"message":"x"}`, expected: map[string]any{"code": json.Number("500"), "message": "x"}},
		{name: "undecodable ok", status: 200, body: `not json`, errTarget: komparu.ErrGeneric},
		{name: "no content", status: 204, body: ``, expected: nil},
		{name: "no content with body", status: 204, body: `{"a":1}`, expected: map[string]any{"a": json.Number("1")}},
		{name: "created is generic", status: 201, body: `{"id":1}`, errTarget: komparu.ErrGeneric},
		{name: "server error", status: 500, body: `{"code":500,"message":"boom"}`, errTarget: komparu.ErrGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, err := komparu.MapResponse(req, response(tt.status, tt.body))
			if tt.errTarget != nil {
				require.ErrorIs(t, err, tt.errTarget)
				assert.Nil(t, body)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestMapResponse_ErrorDetails(t *testing.T) {
	t.Parallel()

	t.Run("validation message and errors", func(t *testing.T) {
		t.Parallel()

		req := mustRequest(t, "POST", "https://api.example.com/v1/product", nil)

		_, err := komparu.MapResponse(req, response(422, `{"message":"Name is required","errors":{"name":["required"]}}`))
		require.Error(t, err)

		assert.True(t, komparu.IsValidation(err))
		assert.Equal(t, "Name is required", err.Error())
		assert.Equal(t, map[string]any{"name": []any{"required"}}, komparu.ValidationErrors(err))
	})

	t.Run("validation default message", func(t *testing.T) {
		t.Parallel()

		req := mustRequest(t, "POST", "https://api.example.com/v1/product", nil)

		_, err := komparu.MapResponse(req, response(422, `{}`))
		require.Error(t, err)
		assert.Equal(t, komparu.DefaultValidationMessage, err.Error())
	})

	t.Run("kind error names request", func(t *testing.T) {
		t.Parallel()

		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		_, err := komparu.MapResponse(req, response(404, ``))
		require.Error(t, err)
		assert.True(t, komparu.IsNotFound(err))
		assert.Equal(t, "resource not found: GET https://api.example.com/v1/product", err.Error())
		assert.Nil(t, komparu.ValidationErrors(err))
	})

	t.Run("generic json message", func(t *testing.T) {
		t.Parallel()

		req, err := komparu.NewRequest("POST", "https://api.example.com/v1/product", komparu.RequestOptions{
			Body: komparu.Params{"name": "phone"},
		})
		require.NoError(t, err)

		_, err = komparu.MapResponse(req, response(500, `{"code":500,"message":"boom","description":"db down"}`))
		require.Error(t, err)

		assert.Equal(t,
			"POST https://api.example.com/v1/product\n{\"name\":\"phone\"}\n\n500 boom\ndb down",
			err.Error())
	})

	t.Run("generic raw message", func(t *testing.T) {
		t.Parallel()

		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		_, err := komparu.MapResponse(req, response(502, `<h1>Bad Gateway</h1>`))
		require.Error(t, err)

		assert.Equal(t,
			"GET https://api.example.com/v1/product\n\n\nResponse Body (json encoded):\n\n<h1>Bad Gateway</h1>",
			err.Error())

		apiErr := &komparu.APIError{}
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 502, apiErr.Status)
		assert.Equal(t, komparu.KindGeneric, apiErr.Kind)
	})
}

func TestInBodyCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     any
		code     int
		detected bool
	}{
		{name: "json number", body: map[string]any{"code": json.Number("404"), "message": "x"}, code: 404, detected: true},
		{name: "float", body: map[string]any{"code": 401.0, "message": "x"}, code: 401, detected: true},
		{name: "numeric string", body: map[string]any{"code": "422", "message": "x"}, code: 422, detected: true},
		{name: "missing message", body: map[string]any{"code": 404}, detected: false},
		{name: "null message", body: map[string]any{"code": 404, "message": nil}, detected: false},
		{name: "text code", body: map[string]any{"code": "E_GONE", "message": "x"}, detected: false},
		{name: "not an object", body: []any{1}, detected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, ok := komparu.InBodyCode(tt.body)
			assert.Equal(t, tt.detected, ok)

			if tt.detected {
				assert.Equal(t, tt.code, code)
			}
		})
	}
}

func TestResponseMapper_Handle(t *testing.T) { //nolint:funlen
	t.Parallel()

	t.Run("success keeps headers", func(t *testing.T) {
		t.Parallel()

		mapper := komparu.NewResponseMapper(nil, nil)
		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		result, err := mapper.Handle(req, response(200, `{"id":1}`), komparu.RaiseErrors)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": json.Number("1")}, result.Body)
		assert.Equal(t, "abc", result.Headers.Get("X-Request-Id"))
		assert.False(t, result.Failed())
	})

	t.Run("raise mode returns error", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{}
		renderer := &recordingRenderer{}
		mapper := komparu.NewResponseMapper(logger, renderer)
		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		result, err := mapper.Handle(req, response(500, `oops`), komparu.RaiseErrors)
		require.ErrorIs(t, err, komparu.ErrGeneric)
		assert.Nil(t, result)
		assert.Equal(t, []string{"error"}, logger.levels())
		require.Len(t, renderer.calls, 1)
		assert.Equal(t, 500, renderer.calls[0].Status)
	})

	t.Run("data mode returns error text", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{}
		renderer := &recordingRenderer{}
		mapper := komparu.NewResponseMapper(logger, renderer)
		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		result, err := mapper.Handle(req, response(404, ``), komparu.ErrorsAsData)
		require.NoError(t, err)
		assert.Equal(t, "resource not found: GET https://api.example.com/v1/product", result.Error)
		assert.True(t, result.Failed())
		assert.Empty(t, logger.levels())
		assert.Empty(t, renderer.calls)
	})

	t.Run("data mode logs generic without rendering", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{}
		renderer := &recordingRenderer{}
		mapper := komparu.NewResponseMapper(logger, renderer)
		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		result, err := mapper.Handle(req, response(503, `down`), komparu.ErrorsAsData)
		require.NoError(t, err)
		assert.Contains(t, result.Error, "down")
		assert.Equal(t, []string{"error"}, logger.levels())
		assert.Empty(t, renderer.calls)
	})

	t.Run("unknown in-body code warns", func(t *testing.T) {
		t.Parallel()

		logger := &recordingLogger{}
		mapper := komparu.NewResponseMapper(logger, nil)
		req := mustRequest(t, "GET", "https://api.example.com/v1/product", nil)

		result, err := mapper.Handle(req, response(200, `{"code":409,"message":"conflict"}`), komparu.RaiseErrors)
		require.NoError(t, err)
		assert.NotNil(t, result.Body)
		assert.Equal(t, []string{"warn"}, logger.levels())
	})
}

func TestErrorBody(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{"message": "bad"}, komparu.ErrorBody(response(422, `{"message":"bad"}`)))
	assert.Equal(t, "Internal Server Error", komparu.ErrorBody(response(500, `Internal Server Error`)))
	assert.Equal(t, "", komparu.ErrorBody(response(500, ``)))
}

func TestCachedFailureError(t *testing.T) {
	t.Parallel()

	req, err := komparu.NewRequest("GET", "https://api.example.com/v1/product", komparu.RequestOptions{})
	require.NoError(t, err)

	validation := komparu.CachedFailureError(req, &komparu.Result{
		Error: map[string]any{"message": "bad filter", "errors": map[string]any{"brand": "unknown"}},
	})
	assert.True(t, komparu.IsValidation(validation))
	assert.Equal(t, 422, validation.Status)
	assert.Equal(t, "bad filter", validation.Error())
	assert.Equal(t, map[string]any{"brand": "unknown"}, validation.Errors)
	assert.JSONEq(t, `{"message":"bad filter","errors":{"brand":"unknown"}}`, string(validation.Body))

	defaulted := komparu.CachedFailureError(req, &komparu.Result{Error: map[string]any{}})
	assert.Equal(t, komparu.DefaultValidationMessage, defaulted.Error())

	generic := komparu.CachedFailureError(req, &komparu.Result{Error: "upstream gone"})
	assert.Equal(t, komparu.KindGeneric, generic.Kind)
	assert.Equal(t, "upstream gone", generic.Error())
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	transportErr := &komparu.TransportError{Method: "GET", URL: "https://api.example.com", Err: errors.New("connection refused")} //nolint:err113

	assert.True(t, komparu.IsTransport(transportErr))
	assert.Equal(t, "GET https://api.example.com: connection refused", transportErr.Error())
	assert.False(t, komparu.IsTransport(komparu.ErrNotFound))

	assert.True(t, komparu.IsUnauthorized(&komparu.APIError{Kind: komparu.KindUnauthorized, Status: 401}))
	assert.True(t, komparu.IsRequestTimeout(&komparu.APIError{Kind: komparu.KindRequestTimeout, Status: 408}))
	assert.False(t, komparu.IsNotFound(&komparu.APIError{Kind: komparu.KindGeneric, Status: 404}))

	// A sentinel with a status only matches that status.
	assert.NotErrorIs(t, &komparu.APIError{Kind: komparu.KindGeneric, Status: 500},
		&komparu.APIError{Kind: komparu.KindGeneric, Status: 502})

	assert.Equal(t, "unauthorized", komparu.ErrUnauthorized.Error())
}
