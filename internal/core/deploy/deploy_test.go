package deploy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dataops-sh/snowdeck/internal/core/manifest"
)

// =============================================================================
// Target Tests
// =============================================================================

func TestNewTarget_ManifestValuesWin(t *testing.T) {
	app := manifest.Application{
		Name:      "alpha",
		Root:      "apps/alpha",
		Warehouse: "ANALYTICS_WH",
		Schema:    "SANDBOX",
	}

	target := NewTarget(app, "main", "COMPUTE_WH", "APPS")

	assert.Equal(t, "ANALYTICS_WH", target.Warehouse)
	assert.Equal(t, "SANDBOX", target.Schema)
	assert.Equal(t, "main", target.Branch)
}

func TestNewTarget_DefaultsFillEmptyFields(t *testing.T) {
	app := manifest.Application{Name: "alpha", Root: "apps/alpha"}

	target := NewTarget(app, "main", "COMPUTE_WH", "APPS")

	assert.Equal(t, "COMPUTE_WH", target.Warehouse)
	assert.Equal(t, "APPS", target.Schema)
}

// =============================================================================
// Naming Tests
// =============================================================================

func TestObjectName(t *testing.T) {
	assert.Equal(t, "APPS.SALES_DASHBOARD", ObjectName("apps", "sales_dashboard"))
}

func TestRootLocation(t *testing.T) {
	assert.Equal(t, "@apps_repo/branches/main/apps/alpha/", RootLocation("apps_repo", "main", "apps/alpha"))
}

// =============================================================================
// Aggregate Tests
// =============================================================================

func TestAggregate_Empty(t *testing.T) {
	assert.Equal(t, BatchEmpty, Aggregate(nil))
}

func TestAggregate_AllDeployed(t *testing.T) {
	outcomes := []Outcome{
		Deployed("alpha", time.Second),
		Deployed("beta", time.Second),
	}
	assert.Equal(t, BatchSuccess, Aggregate(outcomes))
}

func TestAggregate_DryRunSkipsAreSuccess(t *testing.T) {
	outcomes := []Outcome{
		Skipped("alpha", SkipDryRun),
		Skipped("beta", SkipDryRun),
	}
	assert.Equal(t, BatchSuccess, Aggregate(outcomes))
}

func TestAggregate_OneFailureAmongSuccesses(t *testing.T) {
	outcomes := []Outcome{
		Deployed("alpha", time.Second),
		Failed("beta", errors.New("boom"), time.Second),
		Deployed("gamma", time.Second),
	}
	assert.Equal(t, BatchPartialFailure, Aggregate(outcomes))
}

func TestAggregate_AllAttemptsFailed(t *testing.T) {
	outcomes := []Outcome{
		Failed("alpha", errors.New("boom"), time.Second),
		Failed("beta", errors.New("boom"), time.Second),
	}
	assert.Equal(t, BatchTotalFailure, Aggregate(outcomes))
}

func TestAggregate_FailureThenAbortSkipsIsTotalFailure(t *testing.T) {
	// Skipped apps were never attempted, so one failure plus skips means
	// every attempted app failed.
	outcomes := []Outcome{
		Failed("alpha", errors.New("boom"), time.Second),
		Skipped("beta", SkipAborted),
		Skipped("gamma", SkipAborted),
	}
	assert.Equal(t, BatchTotalFailure, Aggregate(outcomes))
}

func TestAggregate_AllCancelledIsTotalFailure(t *testing.T) {
	// Cancelled apps were supposed to deploy and did not; a run that
	// deployed nothing must not exit zero.
	outcomes := []Outcome{
		Skipped("alpha", SkipCancelled),
		Skipped("beta", SkipCancelled),
	}
	assert.Equal(t, BatchTotalFailure, Aggregate(outcomes))
}

func TestAggregate_CancelledAfterDeploysIsPartialFailure(t *testing.T) {
	outcomes := []Outcome{
		Deployed("alpha", time.Second),
		Skipped("beta", SkipCancelled),
	}
	assert.Equal(t, BatchPartialFailure, Aggregate(outcomes))
}

func TestSortOutcomes(t *testing.T) {
	outcomes := []Outcome{
		Deployed("gamma", 0),
		Deployed("alpha", 0),
		Deployed("beta", 0),
	}

	SortOutcomes(outcomes)

	assert.Equal(t, "alpha", outcomes[0].App)
	assert.Equal(t, "beta", outcomes[1].App)
	assert.Equal(t, "gamma", outcomes[2].App)
}

// =============================================================================
// Backoff Tests
// =============================================================================

func TestBackoff_Delays(t *testing.T) {
	b := Backoff{Attempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Duration(0), b.Delay(4), "attempts exhausted")
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	b := Backoff{Attempts: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 3*time.Second, b.Delay(3))
	assert.Equal(t, 3*time.Second, b.Delay(8))
}

func TestBackoff_NoRetryWithSingleAttempt(t *testing.T) {
	b := Backoff{Attempts: 1, BaseDelay: time.Second, MaxDelay: time.Second}

	assert.Equal(t, time.Duration(0), b.Delay(1))
}

// =============================================================================
// Report Tests
// =============================================================================

func TestBatchReport_Counts(t *testing.T) {
	r := BatchReport{Outcomes: []Outcome{
		Deployed("alpha", 0),
		Skipped("beta", SkipDryRun),
		Failed("gamma", errors.New("boom"), 0),
	}}

	deployed, skipped, failed := r.Counts()
	assert.Equal(t, 1, deployed)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, failed)
}

func TestBatchReport_OutcomeLookup(t *testing.T) {
	r := BatchReport{Outcomes: []Outcome{Deployed("alpha", 0)}}

	o, ok := r.Outcome("alpha")
	assert.True(t, ok)
	assert.Equal(t, StatusDeployed, o.Status)

	_, ok = r.Outcome("missing")
	assert.False(t, ok)
}
