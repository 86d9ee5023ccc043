package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind is a machine-readable failure classification. HTTP failures map
// to kinds through a fixed status-code table; every strategy uses the same
// table.
type ErrorKind string

const (
	// KindBadRequest indicates a malformed request (HTTP 400).
	KindBadRequest ErrorKind = "bad_request"
	// KindUnauthorized indicates authentication failed (HTTP 401).
	KindUnauthorized ErrorKind = "unauthorized"
	// KindForbidden indicates the caller lacks permission (HTTP 403).
	KindForbidden ErrorKind = "forbidden"
	// KindNotFound indicates the resource does not exist (HTTP 404).
	KindNotFound ErrorKind = "not_found"
	// KindConflict indicates a conflict with current state (HTTP 409).
	KindConflict ErrorKind = "conflict"
	// KindPayloadTooLarge indicates the request body was rejected for size (HTTP 413).
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	// KindUnprocessableEntity indicates input validation failed (HTTP 422).
	KindUnprocessableEntity ErrorKind = "unprocessable_entity"
	// KindInternalServerError indicates a server-side failure (HTTP 500).
	KindInternalServerError ErrorKind = "internal_server_error"
	// KindUnknown classifies any status code outside the table.
	KindUnknown ErrorKind = "unknown"
)

// kindByStatus is the single source of truth for status-code
// classification. The key set is closed; unmapped codes fall back to
// KindUnknown.
var kindByStatus = map[int]ErrorKind{
	400: KindBadRequest,
	401: KindUnauthorized,
	403: KindForbidden,
	404: KindNotFound,
	409: KindConflict,
	413: KindPayloadTooLarge,
	422: KindUnprocessableEntity,
	500: KindInternalServerError,
}

// KindFromStatus maps an HTTP status code to an ErrorKind.
func KindFromStatus(statusCode int) ErrorKind {
	if kind, ok := kindByStatus[statusCode]; ok {
		return kind
	}
	return KindUnknown
}

// HTTPError represents a non-2xx response from the API. It carries the
// decoded response payload so callers can diagnose failures without
// re-running with tracing enabled.
type HTTPError struct {
	StatusCode int
	Kind       ErrorKind
	Body       json.RawMessage
}

// NewHTTPError classifies a response through the status table.
func NewHTTPError(statusCode int, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Kind:       KindFromStatus(statusCode),
		Body:       json.RawMessage(body),
	}
}

func (e *HTTPError) Error() string {
	msg := errorMessage(e.Body)
	if msg == "" {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, msg)
}

// errorMessage pulls a human-readable message out of an error payload.
func errorMessage(body json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return string(body)
}

// RetriesExhaustedError surfaces after the retry policy gives up on a
// retryable server error. It wraps the final response's HTTPError.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Kind == kind
	}
	return false
}

// IsNotFound checks if the error indicates the resource was not found.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsUnauthorized checks if the error indicates a failed authentication.
func IsUnauthorized(err error) bool { return IsKind(err, KindUnauthorized) }

// IsConflict checks if the error indicates a state conflict.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }
