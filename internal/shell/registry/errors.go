// Package registry provides the remote application registry capability: it
// queries and mutates what is deployed on the warehouse platform. The
// warehouse is the durable system of record for "what's deployed"; this
// package never caches.
package registry

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when the remote object does not exist.
	ErrNotFound = errors.New("remote application not found")

	// ErrPermissionDenied is returned when the connection's role lacks the
	// required privileges. Not retryable.
	ErrPermissionDenied = errors.New("permission denied by remote platform")

	// ErrConflict is returned when the remote object is in a state that
	// rejects the operation. Not retryable.
	ErrConflict = errors.New("remote state conflict")

	// ErrTransient is returned for failures expected to be retry-recoverable:
	// timeouts, dropped connections, rate limits.
	ErrTransient = errors.New("transient remote error")

	// ErrInvalidTarget is returned when a target carries values that cannot
	// be expressed safely in remote SQL. Not retryable.
	ErrInvalidTarget = errors.New("invalid deployment target")
)

// RemoteError wraps registry failures with operation context.
type RemoteError struct {
	Op      string // Operation that failed (e.g., "Upsert")
	App     string // Application name if applicable
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.App != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.App, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a new RemoteError.
func NewRemoteError(op, app, message string, err error) *RemoteError {
	return &RemoteError{Op: op, App: app, Message: message, Err: err}
}

// IsTransient reports whether the error is retry-recoverable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
