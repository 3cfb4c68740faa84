package vcs

import (
	"context"
	"time"
)

// =============================================================================
// Capability Interfaces
// =============================================================================

// SyncRef is the (branch, commit) pair the remote mirror was last brought up
// to date with. Owned by the Synchronizer; the orchestrator only reads it.
type SyncRef struct {
	Branch   string
	Commit   string
	SyncedAt time.Time
}

// Synchronizer brings the remote platform's mirror of the source tree up to
// date with a named branch before a deploy is attempted.
type Synchronizer interface {
	Sync(ctx context.Context, branch string) (SyncRef, error)
}

// ChangeLister returns the file paths that differ between two version-control
// references. Added, modified, deleted and renamed paths all count; rename
// output includes both sides.
type ChangeLister interface {
	ChangedFiles(ctx context.Context, baseRef, targetRef string) ([]string, error)
}
