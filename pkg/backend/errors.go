package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"banca-client/pkg/metrics"
	"banca-client/pkg/session"
)

// Error kinds. Match with errors.Is.
var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// 408, 429, 5xx and an open circuit
	ErrTransient = errors.New("backend: transient failure")

	// ErrRejected marks a definitive refusal: 400, 403, 404, 409, 422
	ErrRejected = errors.New("backend: request rejected")

	// ErrUnauthenticated marks a missing, expired or refused credential
	ErrUnauthenticated = errors.New("backend: unauthenticated")
)

// Error is a failed backend call. Code and Message come from the
// {"error", "message"} body when the backend sent one.
type Error struct {
	Kind       error
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d: %s", e.Kind, e.Endpoint, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d", e.Kind, e.Endpoint, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsRejected reports whether the backend refused the request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// IsUnauthenticated reports whether the user must sign in again.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// Message returns the backend's message for err, or "".
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// kindForStatus maps an HTTP status to an error kind; nil for success.
func kindForStatus(status int) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return ErrTransient
	default:
		return ErrRejected
	}
}

// classifyTransport wraps a failure that happened before a status was read:
// credential problems are unauthenticated, everything else (refused dial,
// reset, guard timeout, open circuit) is transient.
func classifyTransport(endpoint string, err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, session.ErrNoCredential),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrMalformed):
		return &Error{Kind: ErrUnauthenticated, Endpoint: endpoint, Err: err}
	default:
		return &Error{Kind: ErrTransient, Endpoint: endpoint, Err: err}
	}
}

// requestClass labels err for metrics.
func requestClass(err error) string {
	switch {
	case err == nil:
		return metrics.ClassOK
	case errors.Is(err, context.Canceled):
		return metrics.ClassCanceled
	case IsUnauthenticated(err):
		return metrics.ClassUnauthenticated
	case IsRejected(err):
		return metrics.ClassRejected
	default:
		return metrics.ClassTransient
	}
}
