package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork means the auth server could not be reached or its response
	// could not be read. Transient; the user may retry.
	ErrNetwork = errors.New("auth server unreachable")
	// ErrInvalidCredentials means login or registration was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means the server answered 401 to a bearer request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the bearer was accepted but lacks the role for the
	// resource. It is not an authentication failure.
	ErrForbidden = errors.New("forbidden")
	// ErrUnexpectedStatus covers every other non-2xx response and 2xx
	// bodies that do not decode.
	ErrUnexpectedStatus = errors.New("unexpected response from auth server")
)

// ResponseError carries a non-2xx answer from the auth server. It matches
// exactly one of the sentinels above via errors.Is.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	Message    string
	kind       error
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (%d %s)", e.kind, msg, e.StatusCode, e.Endpoint)
}

func (e *ResponseError) Is(target error) bool {
	return target == e.kind
}

func (e *ResponseError) Unwrap() error {
	return e.kind
}

// NewResponseError describes a non-2xx answer from endpoint, picking the
// sentinel the same way the auth client does.
func NewResponseError(endpoint string, status int, message string) *ResponseError {
	return &ResponseError{Endpoint: endpoint, StatusCode: status, Message: message, kind: classify(endpoint, status)}
}

// classify picks the sentinel for a failed response. Login treats 400 and
// 401 as rejected credentials, register treats 400 that way; any other 401
// is an authorization failure.
func classify(endpoint string, status int) error {
	switch {
	case endpoint == LoginPath && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return ErrInvalidCredentials
	case endpoint == RegisterPath && status == http.StatusBadRequest:
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	default:
		return ErrUnexpectedStatus
	}
}
