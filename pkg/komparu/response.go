package komparu

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorMode decides whether a mapped failure is returned as an error or as
// data in Result.Error.
type ErrorMode int

const (
	// RaiseErrors returns mapped failures as errors.
	RaiseErrors ErrorMode = iota
	// ErrorsAsData returns mapped failures as Result{Error: message} with a nil error.
	ErrorsAsData
)

// DiagnosticRenderer receives generic API errors raised to the caller. It can
// be used to render a debug page or dump the failing exchange somewhere.
type DiagnosticRenderer interface {
	Render(req *Request, resp *Response, err *APIError)
}

// MapResponse maps a raw response onto a success body or a typed error.
//
// 401, 404 and 408 map to their error kinds. 422 maps to a validation error
// when the body is JSON. 200 returns the decoded body unless it carries an
// in-body code of 401/404/408/422 plus a message, in which case it maps as if
// that code were the HTTP status. 204 returns whatever decodes, possibly nil.
// Everything else, including undecodable 200 and 422 bodies, is a generic
// error. MapResponse has no side effects.
func MapResponse(req *Request, resp *Response) (any, error) {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusRequestTimeout:
		return nil, kindError(resp.StatusCode, req, resp)

	case http.StatusUnprocessableEntity:
		data, err := resp.JSON()
		if err != nil {
			return nil, genericError(req, resp)
		}

		return nil, validationError(resp.StatusCode, req, resp, data)

	case http.StatusOK:
		data, err := resp.JSON()
		if err != nil {
			return nil, genericError(req, resp)
		}

		if code, ok := InBodyCode(data); ok {
			switch code {
			case http.StatusUnauthorized, http.StatusNotFound, http.StatusRequestTimeout:
				return nil, kindError(code, req, resp)
			case http.StatusUnprocessableEntity:
				return nil, validationError(code, req, resp, data)
			}
		}

		return data, nil

	case http.StatusNoContent:
		data, err := resp.JSON()
		if err != nil {
			return nil, nil //nolint:nilnil // an empty 204 is a successful empty result
		}

		return data, nil

	default:
		return nil, genericError(req, resp)
	}
}

// InBodyCode returns the numeric "code" of a decoded body that also carries a
// "message" field. Numeric strings count as numbers.
func InBodyCode(body any) (int, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}

	message, hasMessage := obj["message"]
	if !hasMessage || message == nil {
		return 0, false
	}

	switch code := obj["code"].(type) {
	case json.Number:
		value, err := code.Float64()
		if err != nil {
			return 0, false
		}

		return int(value), true
	case float64:
		return int(code), true
	case int:
		return code, true
	case string:
		value, err := strconv.ParseFloat(code, 64)
		if err != nil {
			return 0, false
		}

		return int(value), true
	default:
		return 0, false
	}
}

func isSpecialCode(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusRequestTimeout, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func kindError(code int, req *Request, resp *Response) *APIError {
	kind := KindGeneric

	switch code {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusRequestTimeout:
		kind = KindRequestTimeout
	}

	return &APIError{
		Kind:   kind,
		Status: code,
		Method: req.Method,
		URL:    effectiveURL(req, resp),
		Body:   resp.Body,
	}
}

func validationError(code int, req *Request, resp *Response, data any) *APIError {
	apiErr := &APIError{
		Kind:    KindValidation,
		Status:  code,
		Method:  req.Method,
		URL:     effectiveURL(req, resp),
		Message: DefaultValidationMessage,
		Body:    resp.Body,
	}

	if obj, ok := data.(map[string]any); ok {
		if message, ok := obj["message"].(string); ok && message != "" {
			apiErr.Message = message
		}

		apiErr.Errors = obj["errors"]
	}

	return apiErr
}

func genericError(req *Request, resp *Response) *APIError {
	payload, _ := req.Payload()

	var message string

	data, err := resp.JSON()
	if obj, ok := data.(map[string]any); err == nil && ok {
		message = fmt.Sprintf("%s %s\n%s\n\n%s %s\n%s",
			req.Method, effectiveURL(req, resp), payload,
			fieldText(obj["code"]), fieldText(obj["message"]), fieldText(obj["description"]))
	} else {
		message = fmt.Sprintf("%s %s\n%s\n\nResponse Body (json encoded):\n\n%s",
			req.Method, effectiveURL(req, resp), payload, resp.Body)
	}

	return &APIError{
		Kind:    KindGeneric,
		Status:  resp.StatusCode,
		Method:  req.Method,
		URL:     effectiveURL(req, resp),
		Message: message,
		Body:    resp.Body,
	}
}

func fieldText(value any) string {
	if value == nil {
		return ""
	}

	return fmt.Sprint(value)
}

func effectiveURL(req *Request, resp *Response) string {
	if resp.EffectiveURL != "" {
		return resp.EffectiveURL
	}

	return req.EffectiveURL()
}

// CachedFailureError rebuilds the error of a failed result read back from the
// cache. Decoded object bodies map as validation failures, anything else as a
// generic error carrying the stored text.
func CachedFailureError(req *Request, result *Result) *APIError {
	obj, ok := result.Error.(map[string]any)
	if !ok {
		return &APIError{
			Kind:    KindGeneric,
			Method:  req.Method,
			URL:     req.EffectiveURL(),
			Message: fieldText(result.Error),
		}
	}

	body, _ := json.Marshal(obj)
	resp := &Response{
		StatusCode:   http.StatusUnprocessableEntity,
		Body:         body,
		Headers:      result.Headers,
		EffectiveURL: req.EffectiveURL(),
	}

	return validationError(http.StatusUnprocessableEntity, req, resp, obj)
}

// ErrorBody extracts the value recorded for a failed batch member: the
// decoded JSON body when it decodes, the raw body text otherwise.
func ErrorBody(resp *Response) any {
	data, err := resp.JSON()
	if err != nil {
		return string(resp.Body)
	}

	return data
}

// ResponseMapper applies MapResponse together with logging, diagnostics and
// an error mode.
type ResponseMapper struct {
	logger      Logger
	diagnostics DiagnosticRenderer
}

// NewResponseMapper creates a mapper. Both arguments may be nil.
func NewResponseMapper(logger Logger, diagnostics DiagnosticRenderer) *ResponseMapper {
	return &ResponseMapper{
		logger:      loggerOrNop(logger),
		diagnostics: diagnostics,
	}
}

// Handle maps the response and applies the error mode.
func (m *ResponseMapper) Handle(req *Request, resp *Response, mode ErrorMode) (*Result, error) {
	body, err := MapResponse(req, resp)
	if err != nil {
		apiErr := &APIError{}
		if errors.As(err, &apiErr) && apiErr.Kind == KindGeneric {
			m.logger.Error(apiErr.Message, map[string]interface{}{
				"method": req.Method,
				"url":    apiErr.URL,
				"status": resp.StatusCode,
			})

			if mode == RaiseErrors && m.diagnostics != nil {
				m.diagnostics.Render(req, resp, apiErr)
			}
		}

		if mode == ErrorsAsData {
			return &Result{Error: err.Error(), Headers: resp.Headers}, nil
		}

		return nil, err
	}

	if code, ok := InBodyCode(body); ok && !isSpecialCode(code) {
		m.logger.Warn("API returned an in-body error code", map[string]interface{}{
			"method": req.Method,
			"url":    effectiveURL(req, resp),
			"code":   code,
		})
	}

	return &Result{Body: body, Headers: resp.Headers}, nil
}
