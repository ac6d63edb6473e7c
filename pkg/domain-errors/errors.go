// Package domainerrors defines coded errors shared across services and
// transports. Services attach a Code; the HTTP layer maps codes to statuses
// without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and log filtering.
type Code string

const (
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeInternal     Code = "INTERNAL"

	// Crypto and trust failures keep distinct codes so operators can tell a
	// tampered payload from a configuration problem.
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeUnknownKeyVersion    Code = "UNKNOWN_KEY_VERSION"
	CodeKeyNotConfigured     Code = "KEY_NOT_CONFIGURED"
	CodeStoreUnavailable     Code = "STORE_UNAVAILABLE"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(cause error, code Code, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HasCode is an alias of Is kept for call-site readability.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the code from the outermost coded error in the chain.
// Uncoded errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the transport layer answers with.
// Store and crypto failures deliberately surface as 5xx: the caller did
// nothing wrong.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnknownKeyVersion, CodeKeyNotConfigured:
		return http.StatusInternalServerError
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
