// Package apperr defines the error taxonomy shared across the search
// pipeline. Coordinator and adapter code tag errors with one of these
// kinds; the HTTP layer maps kinds to status codes.
package apperr

import "errors"

// Kind categorizes an error for retry decisions and HTTP status mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConnection   Kind = "connection"
	KindTimeout      Kind = "timeout"
	KindAuth         Kind = "auth"
	KindRateLimit    Kind = "rate_limit"
	KindParse        Kind = "parse"
	KindCircuitOpen  Kind = "circuit_open"
	KindSearchTimeout Kind = "search_timeout"
	KindConfiguration Kind = "configuration"
	KindUnknown      Kind = "unknown"
)

// Error wraps an underlying error with a Kind and, for rate limiting, a
// retry-after hint.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds, only meaningful for KindRateLimit
	err        error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// New creates a new tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, otherwise KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinel errors for comparison with errors.Is. No package in this
// module currently returns them.
var (
	ErrNotFound      = errors.New("not found")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
	ErrSearchTimeout = errors.New("search deadline elapsed")
)

// Connection, Timeout, Auth, RateLimit and Parse construct the adapter
// error kinds named in spec §7.
func Connection(message string, err error) *Error { return Wrap(KindConnection, message, err) }
func Timeout(message string, err error) *Error     { return Wrap(KindTimeout, message, err) }
func Auth(message string, err error) *Error        { return Wrap(KindAuth, message, err) }
func Parse(message string, err error) *Error       { return Wrap(KindParse, message, err) }

// RateLimit constructs a rate-limit error with an optional Retry-After hint.
func RateLimit(message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter}
}
