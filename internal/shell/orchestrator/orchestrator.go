// Package orchestrator composes the manifest loader, change detection and the
// remote capabilities into deployment runs. One failed application never
// aborts its siblings unless the caller asked for that; the only run-level
// failures are the shared preconditions (mirror sync, scope resolution).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dataops-sh/snowdeck/internal/core/changes"
	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/core/manifest"
	"github.com/dataops-sh/snowdeck/internal/shell/registry"
	"github.com/dataops-sh/snowdeck/internal/shell/vcs"
)

// Journal records finished runs. Satisfied by history.Store; narrow so tests
// and journal-less setups stay simple.
type Journal interface {
	RecordRun(ctx context.Context, report deploy.BatchReport) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config wires the orchestrator's collaborators.
type Config struct {
	// RepoRoot is the absolute path of the source working copy.
	RepoRoot string

	// AppsRoot is the apps directory relative to RepoRoot, e.g. "apps".
	AppsRoot string

	// DefaultWarehouse and DefaultSchema fill manifest fields left empty.
	DefaultWarehouse string
	DefaultSchema    string

	Registry     registry.Client
	Synchronizer vcs.Synchronizer
	Changes      vcs.ChangeLister

	// History is optional; when set, every finished run is journaled.
	History Journal

	Logger *slog.Logger
}

// Orchestrator executes deployment runs. Safe for concurrent use; each Run
// keeps its own state apart from the last-sync record.
type Orchestrator struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	lastSync *vcs.SyncRef
}

// New creates an orchestrator. Registry and Synchronizer are required;
// Changes is only needed for changed-scope runs.
func New(config Config) (*Orchestrator, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("orchestrator: registry client is required")
	}
	if config.Synchronizer == nil {
		return nil, fmt.Errorf("orchestrator: synchronizer is required")
	}
	if config.AppsRoot == "" {
		config.AppsRoot = "apps"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Orchestrator{
		config: config,
		logger: config.Logger.With("component", "orchestrator"),
	}, nil
}

// LastSync returns the most recent successful mirror sync, if any happened
// during this process lifetime.
func (o *Orchestrator) LastSync() (vcs.SyncRef, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSync == nil {
		return vcs.SyncRef{}, false
	}
	return *o.lastSync, true
}

// Sync refreshes the remote mirror for branch and records the result.
func (o *Orchestrator) Sync(ctx context.Context, branch string, timeout time.Duration) (vcs.SyncRef, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ref, err := o.config.Synchronizer.Sync(ctx, branch)
	if err != nil {
		return vcs.SyncRef{}, err
	}

	o.mu.Lock()
	o.lastSync = &ref
	o.mu.Unlock()
	return ref, nil
}

// Delete removes one deployed application from the registry. Bounded by
// timeout like every other remote call.
func (o *Orchestrator) Delete(ctx context.Context, app string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.config.Registry.Delete(ctx, app)
}

// =============================================================================
// Run
// =============================================================================

// Run executes one deployment run and returns its batch report. The report
// always enumerates every attempted application; run-level failures carry
// their reason on the report itself.
func (o *Orchestrator) Run(ctx context.Context, sel deploy.Selection, branch string, opts deploy.Options) deploy.BatchReport {
	started := time.Now()
	runID := uuid.NewString()

	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry = deploy.DefaultBackoff()
	}

	log := o.logger.With("run_id", runID, "branch", branch, "mode", string(sel.Mode))
	log.Info("starting run",
		"dry_run", opts.DryRun,
		"sync_first", opts.SyncFirst,
		"max_parallel", opts.MaxParallel,
	)

	report := deploy.BatchReport{
		RunID:   runID,
		Branch:  branch,
		Mode:    sel.Mode,
		Started: started,
	}

	// Sync is a shared precondition: its failure aborts the run with no
	// per-app attempts made.
	if opts.SyncFirst {
		if _, err := o.Sync(ctx, branch, opts.RemoteTimeout); err != nil {
			log.Error("mirror sync failed", "error", err)
			report.Status = deploy.BatchTotalFailure
			report.Reason = fmt.Sprintf("sync failed: %v", err)
			return o.finish(ctx, log, report, started)
		}
	}

	names, outcomes, reason := o.resolve(ctx, sel, branch)
	if reason != "" {
		report.Status = deploy.BatchTotalFailure
		report.Reason = reason
		report.Outcomes = outcomes
		return o.finish(ctx, log, report, started)
	}
	if len(names) == 0 {
		log.Info("selection resolved to no applications")
		report.Status = deploy.BatchEmpty
		return o.finish(ctx, log, report, started)
	}

	log.Info("resolved applications", "count", len(names), "apps", names)

	report.Outcomes = o.execute(ctx, names, branch, opts)
	report.Status = deploy.Aggregate(report.Outcomes)
	return o.finish(ctx, log, report, started)
}

// finish stamps, sorts, journals and logs the report.
func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, report deploy.BatchReport, started time.Time) deploy.BatchReport {
	report.Duration = time.Since(started)
	deploy.SortOutcomes(report.Outcomes)

	deployed, skipped, failed := report.Counts()
	log.Info("run finished",
		"status", string(report.Status),
		"deployed", deployed,
		"skipped", skipped,
		"failed", failed,
		"duration", report.Duration,
	)

	if o.config.History != nil {
		// Journaling is best effort; a full journal must not fail a deploy.
		if err := o.config.History.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			log.Warn("failed to journal run", "error", err)
		}
	}
	return report
}

// =============================================================================
// Scope Resolution
// =============================================================================

// resolve turns the selection into the concrete application list. A non-empty
// reason means the whole run failed; outcomes may carry the failed attempt.
func (o *Orchestrator) resolve(ctx context.Context, sel deploy.Selection, branch string) (names []string, outcomes []deploy.Outcome, reason string) {
	switch sel.Mode {
	case deploy.ModeSingle:
		// The named app must load cleanly, otherwise the whole run fails.
		if _, err := o.loadApp(sel.App); err != nil {
			outcome := deploy.Failed(sel.App, err, 0)
			return nil, []deploy.Outcome{outcome}, fmt.Sprintf("application %s: %v", sel.App, err)
		}
		return []string{sel.App}, nil, ""

	case deploy.ModeAll:
		discovered, err := manifest.Discover(o.appsDir())
		if err != nil {
			return nil, nil, fmt.Sprintf("discovery failed: %v", err)
		}
		return discovered, nil, ""

	case deploy.ModeChanged:
		if o.config.Changes == nil {
			return nil, nil, "change detection is not configured"
		}

		discovered, err := manifest.Discover(o.appsDir())
		if err != nil {
			return nil, nil, fmt.Sprintf("discovery failed: %v", err)
		}

		roots := manifest.Roots(o.config.AppsRoot, discovered)
		if err := manifest.ValidateRoots(roots); err != nil {
			return nil, nil, fmt.Sprintf("invalid application roots: %v", err)
		}

		paths, err := o.config.Changes.ChangedFiles(ctx, sel.BaselineRef, branch)
		if err != nil {
			return nil, nil, fmt.Sprintf("change detection failed: %v", err)
		}

		return changes.MapChangedPaths(paths, roots), nil, ""

	default:
		return nil, nil, fmt.Sprintf("unknown selection mode %q", sel.Mode)
	}
}

func (o *Orchestrator) appsDir() string {
	return filepath.Join(o.config.RepoRoot, filepath.FromSlash(o.config.AppsRoot))
}

func (o *Orchestrator) loadApp(name string) (manifest.Application, error) {
	dir := filepath.Join(o.appsDir(), name)
	root := path.Join(filepath.ToSlash(o.config.AppsRoot), name)
	return manifest.Load(dir, root)
}

// =============================================================================
// Execution
// =============================================================================

// execute runs the per-app protocol over a bounded worker pool. Workers send
// outcomes over a channel merged here, so nothing shares mutable state.
func (o *Orchestrator) execute(ctx context.Context, names []string, branch string, opts deploy.Options) []deploy.Outcome {
	workers := opts.MaxParallel
	if workers > len(names) {
		workers = len(names)
	}

	jobs := make(chan string)
	results := make(chan deploy.Outcome, len(names))

	// aborted flips when continue_on_error is off and an app fails; apps not
	// yet started are then skipped instead of attempted.
	var aborted atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				switch {
				case ctx.Err() != nil:
					results <- deploy.Skipped(name, deploy.SkipCancelled)
				case aborted.Load():
					results <- deploy.Skipped(name, deploy.SkipAborted)
				default:
					outcome := o.deployOne(ctx, name, branch, opts)
					if outcome.Status == deploy.StatusFailed && !opts.ContinueOnError {
						aborted.Store(true)
					}
					results <- outcome
				}
			}
		}()
	}

	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]deploy.Outcome, 0, len(names))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// deployOne runs the strictly sequential per-app protocol: load manifest,
// build target, upsert (or dry-run skip).
func (o *Orchestrator) deployOne(ctx context.Context, name, branch string, opts deploy.Options) deploy.Outcome {
	start := time.Now()
	log := o.logger.With("app", name, "branch", branch)

	app, err := o.loadApp(name)
	if err != nil {
		log.Error("manifest load failed", "error", err)
		return deploy.Failed(name, err, time.Since(start))
	}

	target := deploy.NewTarget(app, branch, o.config.DefaultWarehouse, o.config.DefaultSchema)

	if opts.DryRun {
		log.Info("dry run, skipping upsert", "schema", target.Schema, "warehouse", target.Warehouse)
		return deploy.Skipped(name, deploy.SkipDryRun)
	}

	if err := o.upsertWithRetry(ctx, log, target, opts); err != nil {
		log.Error("deploy failed", "error", err)
		return deploy.Failed(name, err, time.Since(start))
	}

	log.Info("deployed", "duration", time.Since(start))
	return deploy.Deployed(name, time.Since(start))
}

// upsertWithRetry retries transient registry failures with bounded backoff.
// Terminal failures and exhausted retries return the last error.
func (o *Orchestrator) upsertWithRetry(ctx context.Context, log *slog.Logger, target deploy.Target, opts deploy.Options) error {
	for attempt := 1; ; attempt++ {
		err := o.upsertOnce(ctx, target, opts.RemoteTimeout)
		if err == nil {
			return nil
		}
		if !registry.IsTransient(err) {
			return err
		}

		delay := opts.Retry.Delay(attempt)
		if delay == 0 {
			return err
		}

		log.Warn("transient error, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

func (o *Orchestrator) upsertOnce(ctx context.Context, target deploy.Target, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.config.Registry.Upsert(ctx, target)
}
