// Package errs defines the error-kind taxonomy shared by every controller.
//
// Spec design note: replace thrown-exception control flow with an explicit
// error sum type carrying a kind and optional details; HTTP status mapping
// lives in exactly one place (internal/httpapi).
package errs

import "fmt"

// Kind classifies an error by meaning, not by source type.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindAuthentication  Kind = "AUTHENTICATION"
	KindAuthorization   Kind = "AUTHORIZATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindHashMismatch    Kind = "HASH_MISMATCH"
	KindSessionExpired  Kind = "SESSION_EXPIRED"
	KindFileTooLarge    Kind = "FILE_TOO_LARGE"
	KindUnsupportedMime Kind = "UNSUPPORTED_MIME"
	KindStorage         Kind = "STORAGE"
	KindIPFS            Kind = "IPFS_ERROR"
	KindPrecondition    Kind = "PRECONDITION"
	KindInternal        Kind = "INTERNAL"
)

// Retriable reports whether the HTTP error taxonomy in spec.md §7 treats
// this kind of failure as one a caller may legitimately retry.
func (k Kind) Retriable() bool {
	switch k {
	case KindStorage, KindInternal:
		return true
	default:
		return false
	}
}

// Error is the sum type every controller returns instead of ad-hoc wrapped
// errors. Exactly one Kind per Error; Details carries optional structured
// context (e.g. the list of invalid config fields, or the declared vs.
// actual digest on a hash mismatch).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details and returns the receiver for
// chaining at the call site.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if err == nil {
		return nil, false
	}
	if ae, ok := err.(*Error); ok {
		return ae, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return As(u.Unwrap())
	}
	_ = e
	return nil, false
}
