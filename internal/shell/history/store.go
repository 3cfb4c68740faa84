package history

import (
	"context"
	"time"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

// =============================================================================
// Records
// =============================================================================

// RunRecord is one journaled orchestrator run.
type RunRecord struct {
	ID        string    `db:"id" json:"id"`
	Branch    string    `db:"branch" json:"branch"`
	Mode      string    `db:"mode" json:"mode"`
	Status    string    `db:"status" json:"status"`
	Reason    string    `db:"reason" json:"reason,omitempty"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
	Duration  int64     `db:"duration_ms" json:"duration_ms"`
	Deployed  int       `db:"deployed" json:"deployed"`
	Skipped   int       `db:"skipped" json:"skipped"`
	Failed    int       `db:"failed" json:"failed"`
}

// OutcomeRecord is one journaled per-application outcome.
type OutcomeRecord struct {
	RunID      string `db:"run_id" json:"run_id"`
	App        string `db:"app" json:"app"`
	Status     string `db:"status" json:"status"`
	SkipReason string `db:"skip_reason" json:"skip_reason,omitempty"`
	Reason     string `db:"reason" json:"reason,omitempty"`
	Duration   int64  `db:"duration_ms" json:"duration_ms"`
}

// =============================================================================
// Store Interface
// =============================================================================

// Store is the journal of past runs.
type Store interface {
	// RecordRun appends a finished run and its outcomes.
	RecordRun(ctx context.Context, report deploy.BatchReport) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// GetRunOutcomes returns the per-app outcomes of one run, sorted by app.
	GetRunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error)

	// Close releases the underlying database.
	Close() error
}

// runFromReport flattens a batch report into its journal rows.
func runFromReport(report deploy.BatchReport) (RunRecord, []OutcomeRecord) {
	deployed, skipped, failed := report.Counts()

	run := RunRecord{
		ID:        report.RunID,
		Branch:    report.Branch,
		Mode:      string(report.Mode),
		Status:    string(report.Status),
		Reason:    report.Reason,
		StartedAt: report.Started.UTC(),
		Duration:  report.Duration.Milliseconds(),
		Deployed:  deployed,
		Skipped:   skipped,
		Failed:    failed,
	}

	outcomes := make([]OutcomeRecord, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcomes = append(outcomes, OutcomeRecord{
			RunID:      report.RunID,
			App:        o.App,
			Status:     string(o.Status),
			SkipReason: string(o.Skip),
			Reason:     o.Reason,
			Duration:   o.Duration.Milliseconds(),
		})
	}
	return run, outcomes
}
