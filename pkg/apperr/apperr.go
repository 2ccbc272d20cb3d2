// Package apperr defines the error kinds shared by the store and stream
// engines and the HTTP status codes the front end maps them to.
package apperr

import "net/http"

// Kind classifies an error by the HTTP surface it maps to, independent of
// which package raised it.
type Kind int

const (
	// Internal covers unexpected/database failures.
	Internal Kind = iota
	Unauthorized
	NotFound
	PayloadTooLarge
	RateLimited
	BadRequest
	UpgradeRejected
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case PayloadTooLarge:
		return "payload_too_large"
	case RateLimited:
		return "rate_limited"
	case BadRequest:
		return "bad_request"
	case UpgradeRejected:
		return "upgrade_rejected"
	default:
		return "internal"
	}
}

// Error is the concrete error type carried by the store and stream engines.
// Errors are always constructed with Wrap/New so callers can chain with
// fmt.Errorf-style %w idiom, and centrally mapped to a status code at the
// front end.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// StatusFor maps an error to the HTTP status code the front end returns.
// Errors that are not *Error are treated as Internal.
func StatusFor(err error) int {
	var ae *Error
	if !As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case RateLimited:
		return http.StatusTooManyRequests
	case BadRequest:
		return http.StatusBadRequest
	case UpgradeRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// As walks err's single-error Unwrap chain and stores the first *Error it
// finds in target, so callers only need to import this package for kind
// inspection. Errors that unwrap to several errors are not searched.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
