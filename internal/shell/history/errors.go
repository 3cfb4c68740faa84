// Package history persists an audit journal of deployment runs. The journal
// is write-mostly and is never consulted to decide what to deploy: the remote
// platform stays the system of record for "what's deployed".
package history

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a run is not in the journal.
	ErrNotFound = errors.New("run not found")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("database migration failed")
)

// StoreError wraps journal failures with operation context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "RecordRun")
	RunID   string // Run ID if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s run %s: %s", e.Op, e.RunID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, runID, message string, err error) *StoreError {
	return &StoreError{Op: op, RunID: runID, Message: message, Err: err}
}
