// Package errs defines the error taxonomy shared by the gallery, ranking and
// service layers. Every error produced here matches exactly one sentinel via
// errors.Is, so callers can branch on the kind without string matching.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds.
var (
	// ErrConfig means no usable gallery cache and no usable source at startup.
	ErrConfig = errors.New("configuration error")
	// ErrServiceUnavailable means the service is not initialized, the gallery
	// is empty, or the worker pool is saturated.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrInvalidInput means a malformed query vector or image.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIO means a cache artifact could not be read or written.
	ErrIO = errors.New("io error")
)

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

// Error formats as "op: msg: cause".
func (e *Error) Error() string {
	s := e.Op
	if e.Msg != "" {
		if s != "" {
			s += ": "
		}
		s += e.Msg
	}
	if e.Err != nil {
		if s != "" {
			s += ": "
		}
		s += e.Err.Error()
	}
	if s == "" {
		return e.Kind.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newf(kind error, op string, cause error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// Config returns an ErrConfig for op.
func Config(op, format string, args ...any) error {
	return newf(ErrConfig, op, nil, format, args...)
}

// Unavailable returns an ErrServiceUnavailable for op.
func Unavailable(op, format string, args ...any) error {
	return newf(ErrServiceUnavailable, op, nil, format, args...)
}

// Invalid returns an ErrInvalidInput for op.
func Invalid(op, format string, args ...any) error {
	return newf(ErrInvalidInput, op, nil, format, args...)
}

// IO wraps cause as an ErrIO for op. A nil cause yields nil.
func IO(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: ErrIO, Op: op, Err: cause}
}

// Wrap attaches kind to cause, keeping cause reachable. A nil cause yields nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the sentinel kind of err, or nil when err has none.
func KindOf(err error) error {
	for _, k := range []error{ErrConfig, ErrServiceUnavailable, ErrInvalidInput, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
