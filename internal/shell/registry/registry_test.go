package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/core/manifest"
	"github.com/dataops-sh/snowdeck/internal/shell/snowcli"
)

// =============================================================================
// Stub Runner
// =============================================================================

// stubRunner records queries and replies with scripted output or errors.
type stubRunner struct {
	queries []string
	rows    []map[string]any
	err     error
}

func (s *stubRunner) RunSQL(ctx context.Context, query string) (string, error) {
	s.queries = append(s.queries, query)
	return "", s.err
}

func (s *stubRunner) QuerySQL(ctx context.Context, query string) ([]map[string]any, error) {
	s.queries = append(s.queries, query)
	return s.rows, s.err
}

func testTarget(name string) deploy.Target {
	return deploy.NewTarget(manifest.Application{
		Name:     name,
		Root:     "apps/" + name,
		MainFile: "streamlit_app.py",
	}, "main", "COMPUTE_WH", "APPS")
}

// =============================================================================
// Snow Adapter Tests
// =============================================================================

func TestSnowUpsert_BuildsCreateOrReplace(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	err := client.Upsert(context.Background(), testTarget("alpha"))
	require.NoError(t, err)
	require.Len(t, runner.queries, 1)

	query := runner.queries[0]
	assert.Contains(t, query, "CREATE OR REPLACE STREAMLIT APPS.ALPHA")
	assert.Contains(t, query, "ROOT_LOCATION = '@apps_repo/branches/main/apps/alpha/'")
	assert.Contains(t, query, "MAIN_FILE = 'streamlit_app.py'")
	assert.Contains(t, query, "QUERY_WAREHOUSE = 'COMPUTE_WH'")
}

func TestSnowUpsert_EscapesComment(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	target := testTarget("alpha")
	target.App.Comment = "it's quarterly"

	require.NoError(t, client.Upsert(context.Background(), target))
	assert.Contains(t, runner.queries[0], "it''s quarterly")
}

func TestSnowUpsert_EscapesQuotedValues(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	target := testTarget("alpha")
	target.App.MainFile = "it's.py"
	target.Warehouse = "wh'drop"

	require.NoError(t, client.Upsert(context.Background(), target))

	query := runner.queries[0]
	assert.Contains(t, query, "MAIN_FILE = 'it''s.py'")
	assert.Contains(t, query, "QUERY_WAREHOUSE = 'WH''DROP'")
	assert.NotContains(t, query, "'it's")
}

func TestSnowUpsert_RejectsUnsafeBranch(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	for _, branch := range []string{"", "main'; DROP TABLE x", "release notes"} {
		target := testTarget("alpha")
		target.Branch = branch

		err := client.Upsert(context.Background(), target)
		assert.ErrorIs(t, err, ErrInvalidTarget, "branch %q", branch)
	}
	assert.Empty(t, runner.queries)
}

func TestSnowUpsert_AllowsSlashedBranch(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	target := testTarget("alpha")
	target.Branch = "feature/v1.2-rc_3"

	require.NoError(t, client.Upsert(context.Background(), target))
	assert.Contains(t, runner.queries[0], "branches/feature/v1.2-rc_3/")
}

func TestSnowList_ParsesRows(t *testing.T) {
	runner := &stubRunner{rows: []map[string]any{
		{"name": "ALPHA", "schema_name": "APPS", "comment": "x"},
		{"name": "BETA", "schema_name": "APPS"},
	}}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "apps"}, nil)

	apps, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "ALPHA", apps[0].Name)
	assert.Contains(t, runner.queries[0], "SHOW STREAMLITS IN SCHEMA APPS")
}

func TestSnowDelete_NoIfExists(t *testing.T) {
	runner := &stubRunner{}
	client := NewSnow(runner, SnowConfig{Repo: "apps_repo", Schema: "APPS"}, nil)

	require.NoError(t, client.Delete(context.Background(), "alpha"))
	assert.Equal(t, "DROP STREAMLIT APPS.ALPHA;", runner.queries[0])
}

// =============================================================================
// Classification Tests
// =============================================================================

func TestClassify_Taxonomy(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"object missing", "002003: Streamlit APPS.ALPHA does not exist or not authorized", ErrNotFound},
		{"privileges", "003001: Insufficient privileges to operate on schema APPS", ErrPermissionDenied},
		{"locked", "000625: statement could not be executed, object is locked", ErrConflict},
		{"network", "250003: could not reach the connection endpoint", ErrTransient},
		{"rate limit", "rate limit exceeded, retry later", ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("Upsert", "alpha", &snowcli.CommandError{
				Stderr: tt.stderr,
				Err:    snowcli.ErrCommandFailed,
			})
			assert.ErrorIs(t, err, tt.want)

			var rErr *RemoteError
			require.ErrorAs(t, err, &rErr)
			assert.Equal(t, "alpha", rErr.App)
		})
	}
}

func TestClassify_NotFoundBeatsNotAuthorized(t *testing.T) {
	// The platform reports missing objects as "does not exist or not
	// authorized"; that phrasing must classify as NotFound, not permission.
	err := classify("Delete", "alpha", &snowcli.CommandError{
		Stderr: "Streamlit does not exist or not authorized",
		Err:    snowcli.ErrCommandFailed,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassify_TimeoutIsTransient(t *testing.T) {
	err := classify("Upsert", "alpha", context.DeadlineExceeded)
	assert.True(t, IsTransient(err))
}

func TestClassify_UnknownErrorIsTerminal(t *testing.T) {
	err := classify("Upsert", "alpha", errors.New("syntax error at line 1"))
	assert.False(t, IsTransient(err))
	assert.NotErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Fake Tests
// =============================================================================

func TestFake_UpsertIsIdempotent(t *testing.T) {
	fake := NewFake()
	target := testTarget("alpha")

	require.NoError(t, fake.Upsert(context.Background(), target))
	require.NoError(t, fake.Upsert(context.Background(), target))

	apps, err := fake.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 1, "upsert must never create duplicates")
}

func TestFake_ScriptedUpsertFailures(t *testing.T) {
	fake := NewFake()
	fake.FailUpsert("alpha", ErrTransient, ErrTransient)

	target := testTarget("alpha")
	assert.ErrorIs(t, fake.Upsert(context.Background(), target), ErrTransient)
	assert.ErrorIs(t, fake.Upsert(context.Background(), target), ErrTransient)
	assert.NoError(t, fake.Upsert(context.Background(), target), "queue drained")
}

func TestFake_DeleteMissingApp(t *testing.T) {
	fake := NewFake()

	err := fake.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFake_DeleteRemovesObject(t *testing.T) {
	fake := NewFake()
	require.NoError(t, fake.Upsert(context.Background(), testTarget("alpha")))

	require.NoError(t, fake.Delete(context.Background(), "alpha"))

	_, ok := fake.Deployed("alpha")
	assert.False(t, ok)
}

func TestCommandError_MessagePrefersStderr(t *testing.T) {
	err := &snowcli.CommandError{Stderr: "boom\n", Err: snowcli.ErrCommandFailed}
	assert.True(t, strings.Contains(err.Error(), "boom"))
}
