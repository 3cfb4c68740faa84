package deploy

import (
	"sort"
	"time"
)

// =============================================================================
// Batch Report
// =============================================================================

// BatchStatus is the overall result of one run.
type BatchStatus string

const (
	// BatchSuccess means every outcome is deployed or skipped by design.
	BatchSuccess BatchStatus = "success"

	// BatchPartialFailure means some but not all attempted apps failed.
	BatchPartialFailure BatchStatus = "partial_failure"

	// BatchTotalFailure means every attempted app failed, or a run-level
	// precondition (sync, scope resolution) failed before any attempt.
	BatchTotalFailure BatchStatus = "total_failure"

	// BatchEmpty means the selection resolved to no applications. Not an
	// error: a no-op run exits 0.
	BatchEmpty BatchStatus = "empty_selection"
)

// BatchReport is the aggregated, per-application result of one run.
// Immutable once returned; outcomes are sorted by application name so output
// is deterministic and diffable regardless of completion order.
type BatchReport struct {
	RunID    string        `json:"run_id"`
	Branch   string        `json:"branch"`
	Mode     SelectionMode `json:"mode"`
	Status   BatchStatus   `json:"status"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcomes []Outcome     `json:"outcomes"`

	// Reason explains run-level failures that never reached per-app
	// processing, e.g. a failed sync.
	Reason string `json:"reason,omitempty"`
}

// Outcome returns the outcome for app, if present.
func (r BatchReport) Outcome(app string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.App == app {
			return o, true
		}
	}
	return Outcome{}, false
}

// Counts returns the number of deployed, skipped and failed outcomes.
func (r BatchReport) Counts() (deployed, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusDeployed:
			deployed++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return deployed, skipped, failed
}

// =============================================================================
// Aggregation
// =============================================================================

// Aggregate computes the overall batch status from per-app outcomes.
// Skipped apps are not "attempted", so a run where the only attempts failed
// is a total failure even if other apps were skipped. Only skips requested
// by the caller (dry run) count as benign: a cancelled app was supposed to
// deploy and did not, so it aggregates like a failure.
func Aggregate(outcomes []Outcome) BatchStatus {
	if len(outcomes) == 0 {
		return BatchEmpty
	}

	deployed, undone := 0, 0
	for _, o := range outcomes {
		switch {
		case o.Status == StatusDeployed:
			deployed++
		case o.Status == StatusFailed:
			undone++
		case o.Status == StatusSkipped && o.Skip == SkipCancelled:
			undone++
		}
	}

	switch {
	case undone == 0:
		return BatchSuccess
	case deployed > 0:
		return BatchPartialFailure
	default:
		return BatchTotalFailure
	}
}

// SortOutcomes orders outcomes by application name, in place.
func SortOutcomes(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].App < outcomes[j].App
	})
}
