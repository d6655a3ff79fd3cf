// Package apperr defines the gateway's error taxonomy and its mapping to HTTP
// status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindStorageFailure Kind = iota
	KindAuthInvalid
	KindPathNotAllowed
	KindInvalidInput
	KindNotFound
	KindWrongType
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindAuthInvalid:
		return "auth_invalid"
	case KindPathNotAllowed:
		return "path_not_allowed"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindWrongType:
		return "wrong_type"
	case KindTooLarge:
		return "too_large"
	default:
		return "storage_failure"
	}
}

// Error is a classified error. Msg is safe to show to clients; Err is the
// underlying cause and is never sent over the wire unsanitized.
type Error struct {
	Kind   Kind
	Msg    string
	Err    error
	status int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so sentinel values work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// Status returns the HTTP status code for this error.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindAuthInvalid:
		return http.StatusUnauthorized
	case KindPathNotAllowed:
		return http.StatusForbidden
	case KindInvalidInput, KindWrongType, KindTooLarge:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func AuthInvalid(msg string) *Error { return &Error{Kind: KindAuthInvalid, Msg: msg} }

func PathNotAllowed(msg string) *Error { return &Error{Kind: KindPathNotAllowed, Msg: msg} }

func InvalidInput(msg string) *Error { return &Error{Kind: KindInvalidInput, Msg: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func WrongType(msg string) *Error { return &Error{Kind: KindWrongType, Msg: msg} }

// TooLarge reports a payload that exceeds a read ceiling (400).
func TooLarge(msg string) *Error { return &Error{Kind: KindTooLarge, Msg: msg} }

// PayloadTooLarge reports a request body that exceeds an upload ceiling (413).
func PayloadTooLarge(msg string) *Error {
	return &Error{Kind: KindTooLarge, Msg: msg, status: http.StatusRequestEntityTooLarge}
}

// Storage wraps an I/O failure.
func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorageFailure, Msg: msg, Err: err}
}

// Storagef wraps an I/O failure with a formatted message.
func Storagef(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStorageFailure, Msg: fmt.Sprintf(format, args...), Err: err}
}

// From returns the *Error in err's chain, or a StorageFailure wrapping err.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Storage("storage failure", err)
}

// KindOf reports the Kind of err.
func KindOf(err error) Kind {
	return From(err).Kind
}

// Status maps any error to an HTTP status code.
func Status(err error) int {
	return From(err).Status()
}

var (
	unixPathRe    = regexp.MustCompile(`(^|[\s"'(=:])(/[^\s"'():]*)`)
	windowsPathRe = regexp.MustCompile(`[A-Za-z]:\\[^\s"'():]*`)
)

// Sanitize replaces absolute path fragments in s with "<path>".
func Sanitize(s string) string {
	s = unixPathRe.ReplaceAllString(s, "${1}<path>")
	return windowsPathRe.ReplaceAllString(s, "<path>")
}

// PublicMessage returns the client-facing message for err. Storage failures
// include their sanitized cause.
func PublicMessage(err error) string {
	ae := From(err)
	if ae.Kind == KindStorageFailure && ae.Err != nil {
		return Sanitize(ae.Msg + ": " + ae.Err.Error())
	}
	return Sanitize(ae.Msg)
}
