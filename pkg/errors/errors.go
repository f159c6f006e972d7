package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies failures by how the pipeline reacts to them
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindRateLimit        Kind = "rate_limit"
	KindAuth             Kind = "auth"
	KindNotFound         Kind = "not_found"
	KindServer           Kind = "server_error"
	KindNoReplay         Kind = "no_replay"
	KindMalformedRecord  Kind = "malformed_record"
	KindDownloadFailure  Kind = "download_failure"
	KindFatalSetup       Kind = "fatal_setup"
	KindInvalidInput     Kind = "invalid_input"
	KindUnknown          Kind = "unknown"
)

// Error carries a Kind alongside the failing operation and an optional cause
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d): %s", e.Op, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error without an underlying cause
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf is New with a format string
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// IsRetryable reports whether an error of this kind is worth another attempt
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindRateLimit, KindServer:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus maps a non-2xx HTTP status to a typed error
func FromStatus(op string, statusCode int, body string) *Error {
	e := &Error{Op: op, Code: statusCode, Message: body}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case statusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case statusCode >= 500:
		e.Kind = KindServer
	case statusCode >= 400:
		e.Kind = KindInvalidInput
	default:
		e.Kind = KindUnknown
	}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}
	return e
}
