// Package vcs provides the version-control capabilities the orchestrator
// consumes: syncing the warehouse's git mirror with a branch, and listing
// the files changed between two references. The orchestrator never runs
// version-control primitives itself.
package vcs

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNetworkUnavailable is returned when the mirror cannot reach the
	// upstream repository. Fatal for the whole run when sync was requested.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrAuthFailed is returned when the mirror's credentials are rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBranchNotFound is returned when the requested branch does not exist
	// after a fetch.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBadRevision is returned when a reference cannot be resolved for
	// change detection.
	ErrBadRevision = errors.New("unknown revision")

	// ErrGitFailed is returned when the local git invocation fails for any
	// other reason.
	ErrGitFailed = errors.New("git command failed")
)

// SyncError wraps mirror synchronization failures.
type SyncError struct {
	Branch  string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync branch %s: %s", e.Branch, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// VcsError wraps change-detection failures.
type VcsError struct {
	Op      string
	Message string
	Err     error
}

func (e *VcsError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *VcsError) Unwrap() error {
	return e.Err
}
