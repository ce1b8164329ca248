package query

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

// ErrorKind is the spec's §4.H error taxonomy.
type ErrorKind string

const (
	ErrNetwork ErrorKind = "network"
	ErrTimeout ErrorKind = "timeout"
	ErrParsing ErrorKind = "parsing"
	ErrServer  ErrorKind = "server"
	ErrUnknown ErrorKind = "unknown"
)

// QueryError is the single typed error kind that reaches a Query or
// Mutation handle's observable error state. Modeled on the teacher's
// api.Error (api/errors.go): a typed struct carrying a classification and
// the original cause, rather than a bare error passed through.
type QueryError struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// StatusCode is set only on server errors built by NewServerError, which
	// Classify uses for an HTTP status of 500 or above; other errors,
	// including 4xx responses, leave it 0.
	StatusCode int
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *QueryError) Unwrap() error { return e.Cause }

// NewNetworkError, NewTimeoutError, NewParsingError, NewServerError and
// NewUnknownError build a QueryError of the matching kind.
func NewNetworkError(cause error) *QueryError {
	return &QueryError{Kind: ErrNetwork, Message: "network error", Cause: cause}
}

func NewTimeoutError(cause error) *QueryError {
	return &QueryError{Kind: ErrTimeout, Message: "request timed out", Cause: cause}
}

func NewParsingError(cause error) *QueryError {
	return &QueryError{Kind: ErrParsing, Message: "failed to parse response", Cause: cause}
}

func NewServerError(status int, cause error) *QueryError {
	return &QueryError{Kind: ErrServer, Message: "server error", Cause: cause, StatusCode: status}
}

func NewUnknownError(cause error) *QueryError {
	return &QueryError{Kind: ErrUnknown, Message: "unknown error", Cause: cause}
}

// HTTPStatusError lets a user fetch function report an HTTP status code
// without the core depending on any particular HTTP client; Classify
// inspects it for the §7 "HTTP status >= 500 -> server" rule.
type HTTPStatusError struct {
	StatusCode int
	Cause      error
}

func (e *HTTPStatusError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return http.StatusText(e.StatusCode)
}

func (e *HTTPStatusError) Unwrap() error { return e.Cause }

// Classify is the single place a raw error from user code becomes a typed
// QueryError, implementing §7's classification rules. If err is already a
// *QueryError it is returned unchanged.
func Classify(err error) *QueryError {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return NewServerError(statusErr.StatusCode, err)
		}
		return NewUnknownError(err)
	}

	var syntaxErr *json.SyntaxError
	var unmarshalErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &unmarshalErr) {
		return NewParsingError(err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTimeoutError(err)
		}
		return NewNetworkError(err)
	}

	return NewUnknownError(err)
}

// RetryPolicy controls whether and how a failed fetch attempt is retried.
// The zero value is not usable; use DefaultRetryPolicy.
type RetryPolicy struct {
	// MaxRetries bounds the number of retry attempts after the first.
	// Per kind: defaults retry network/timeout up to 3 times, server once,
	// parsing/unknown never (§4.H).
	MaxRetries func(kind ErrorKind) int

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // fraction, e.g. 0.2 for ±20%
}

// DefaultRetryPolicy implements the spec's default retry table: network and
// timeout retried up to 3 times with exponential backoff (base 250ms, cap
// 8s, jitter ±20%), server retried once, parsing and unknown never retried.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: func(kind ErrorKind) int {
			switch kind {
			case ErrNetwork, ErrTimeout:
				return 3
			case ErrServer:
				return 1
			default:
				return 0
			}
		},
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  8 * time.Second,
		Jitter:    0.2,
	}
}

// ShouldRetry reports whether attempt (1-indexed, the attempt that just
// failed) should be followed by another for the given error kind.
func (p RetryPolicy) ShouldRetry(kind ErrorKind, attempt int) bool {
	if p.MaxRetries == nil {
		return false
	}
	return attempt <= p.MaxRetries(kind)
}

// Backoff returns the delay before retry number `attempt` (1-indexed),
// exponential with a cap and symmetric jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	capDelay := p.MaxDelay
	if capDelay <= 0 {
		capDelay = 8 * time.Second
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > capDelay {
			d = capDelay
			break
		}
	}

	jitter := p.Jitter
	if jitter <= 0 {
		return d
	}
	delta := time.Duration(float64(d) * jitter)
	if delta <= 0 {
		return d
	}
	offset := time.Duration(rand.Int63n(int64(2*delta+1))) - delta
	result := d + offset
	if result < 0 {
		return 0
	}
	return result
}
