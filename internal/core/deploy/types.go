// Package deploy defines the value types and pure policy for deployment runs.
// This is part of the Functional Core - no I/O, no side effects. The
// orchestrator in the shell executes runs; this package decides what a run
// means and how its outcomes aggregate.
package deploy

import (
	"time"

	"github.com/dataops-sh/snowdeck/internal/core/manifest"
)

// =============================================================================
// Selection
// =============================================================================

// SelectionMode is the scope rule determining which applications a run
// attempts.
type SelectionMode string

const (
	// ModeSingle deploys exactly one named application.
	ModeSingle SelectionMode = "single"

	// ModeAll deploys every application discovered under the apps root.
	ModeAll SelectionMode = "all"

	// ModeChanged deploys applications whose file trees differ between a
	// baseline reference and the target branch head.
	ModeChanged SelectionMode = "changed"
)

// Selection is the resolved scope request for one run.
type Selection struct {
	Mode SelectionMode

	// App is the application name for ModeSingle.
	App string

	// BaselineRef is the version-control baseline for ModeChanged.
	BaselineRef string
}

// Single selects exactly one application by name.
func Single(app string) Selection {
	return Selection{Mode: ModeSingle, App: app}
}

// All selects every discovered application.
func All() Selection {
	return Selection{Mode: ModeAll}
}

// ChangedSince selects applications changed since the baseline reference.
func ChangedSince(ref string) Selection {
	return Selection{Mode: ModeChanged, BaselineRef: ref}
}

// =============================================================================
// Options
// =============================================================================

// Options tune one orchestrator run.
type Options struct {
	// SyncFirst refreshes the remote git mirror before deploying. A sync
	// failure is fatal for the whole run.
	SyncFirst bool

	// DryRun records what would be deployed without touching the registry.
	DryRun bool

	// MaxParallel bounds concurrent per-app deployments. Values below 1 are
	// treated as 1 (sequential, deterministic completion order).
	MaxParallel int

	// ContinueOnError keeps processing remaining applications after a
	// failure. When false, the first failure aborts the rest.
	ContinueOnError bool

	// RemoteTimeout bounds each network call (sync, upsert, delete).
	// Zero means no per-call timeout beyond the run context.
	RemoteTimeout time.Duration

	// Retry is the backoff policy for transient registry errors.
	Retry Backoff
}

// DefaultOptions returns the options used when the caller does not override
// anything: sequential, continue-on-error, default retry policy.
func DefaultOptions() Options {
	return Options{
		MaxParallel:     1,
		ContinueOnError: true,
		RemoteTimeout:   60 * time.Second,
		Retry:           DefaultBackoff(),
	}
}

// =============================================================================
// Deployment Target
// =============================================================================

// Target is the (application, branch, remote namespace) tuple identifying one
// remote object the registry can create, replace or delete. At most one live
// remote object exists per target identity; deployment is always an upsert.
type Target struct {
	App    manifest.Application
	Branch string

	// Warehouse and Schema are the resolved values: the application's own
	// when declared, otherwise the configured defaults.
	Warehouse string
	Schema    string
}

// NewTarget builds the deployment target for app on branch, filling in
// defaults for fields the manifest left empty.
func NewTarget(app manifest.Application, branch, defaultWarehouse, defaultSchema string) Target {
	t := Target{
		App:       app,
		Branch:    branch,
		Warehouse: app.Warehouse,
		Schema:    app.Schema,
	}
	if t.Warehouse == "" {
		t.Warehouse = defaultWarehouse
	}
	if t.Schema == "" {
		t.Schema = defaultSchema
	}
	return t
}

// =============================================================================
// Outcomes
// =============================================================================

// OutcomeStatus is the per-application result of one run.
type OutcomeStatus string

const (
	StatusDeployed OutcomeStatus = "deployed"
	StatusSkipped  OutcomeStatus = "skipped"
	StatusFailed   OutcomeStatus = "failed"
)

// SkipReason says why an application was skipped.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipDryRun    SkipReason = "dry_run"
	SkipAborted   SkipReason = "aborted_by_earlier_failure"
	SkipCancelled SkipReason = "cancelled"
)

// Outcome is the immutable per-application result. Reason carries the
// human-readable explanation for every non-deployed status.
type Outcome struct {
	App      string        `json:"app"`
	Status   OutcomeStatus `json:"status"`
	Skip     SkipReason    `json:"skip_reason,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`

	// Err preserves the underlying error for classification. It is not
	// serialized; Reason is the user-visible form.
	Err error `json:"-"`
}

// Deployed builds a successful outcome.
func Deployed(app string, d time.Duration) Outcome {
	return Outcome{App: app, Status: StatusDeployed, Duration: d}
}

// Skipped builds a skipped outcome with the given reason.
func Skipped(app string, reason SkipReason) Outcome {
	return Outcome{App: app, Status: StatusSkipped, Skip: reason, Reason: string(reason)}
}

// Failed builds a failed outcome from an error.
func Failed(app string, err error, d time.Duration) Outcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Outcome{App: app, Status: StatusFailed, Reason: reason, Duration: d, Err: err}
}
