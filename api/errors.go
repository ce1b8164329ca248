// Package api provides the demo server's HTTP error response shape and the
// query-parameter helpers its handlers parse requests with, adapted from
// the teacher's api/errors.go and api/query.go.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dougbarrett/reactivequery/query"
)

// Error represents an API error with HTTP status code
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes an API error as JSON response
func WriteError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = &Error{
			Status:  http.StatusInternalServerError,
			Code:    "internal_error",
			Message: err.Error(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// Common error constructors

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

func NotFoundf(format string, args ...any) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "bad_request", Message: message}
}

func BadRequestf(format string, args ...any) *Error {
	return BadRequest(fmt.Sprintf(format, args...))
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: "forbidden", Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: "conflict", Message: message}
}

func InternalError(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: message}
}

func InternalErrorf(format string, args ...any) *Error {
	return InternalError(fmt.Sprintf(format, args...))
}

// FromQueryError maps a classified query.QueryError onto the HTTP status
// code a handler should respond with, so a handler that calls into a
// query.Client's Mutation and gets back a classified error doesn't have to
// re-derive its own status mapping.
func FromQueryError(err *query.QueryError) *Error {
	switch err.Kind {
	case query.ErrTimeout:
		return &Error{Status: http.StatusGatewayTimeout, Code: "timeout", Message: err.Error()}
	case query.ErrServer:
		return &Error{Status: http.StatusBadGateway, Code: "upstream_error", Message: err.Error()}
	case query.ErrParsing:
		return &Error{Status: http.StatusBadRequest, Code: "parse_error", Message: err.Error()}
	case query.ErrNetwork:
		return &Error{Status: http.StatusServiceUnavailable, Code: "network_error", Message: err.Error()}
	default:
		return InternalError(err.Error())
	}
}
