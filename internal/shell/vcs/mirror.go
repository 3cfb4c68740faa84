package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dataops-sh/snowdeck/internal/shell/snowcli"
)

// =============================================================================
// Warehouse Mirror Synchronizer
// =============================================================================

// Mirror synchronizes the warehouse-side git repository object with its
// upstream. The warehouse serves deployed code straight out of this mirror,
// so a deploy without a preceding sync runs whatever the mirror last fetched.
type Mirror struct {
	runner snowcli.Runner
	repo   string
	logger *slog.Logger
}

// NewMirror creates a synchronizer for the named warehouse git repository.
func NewMirror(runner snowcli.Runner, repo string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		runner: runner,
		repo:   repo,
		logger: logger.With("component", "mirror"),
	}
}

// Sync fetches the mirror and resolves the branch head it now holds.
func (m *Mirror) Sync(ctx context.Context, branch string) (SyncRef, error) {
	m.logger.Info("syncing git mirror", "repo", m.repo, "branch", branch)

	fetch := fmt.Sprintf("ALTER GIT REPOSITORY %s FETCH;", m.repo)
	if _, err := m.runner.RunSQL(ctx, fetch); err != nil {
		return SyncRef{}, classifySync(branch, err)
	}

	show := fmt.Sprintf("SHOW GIT BRANCHES LIKE '%s' IN GIT REPOSITORY %s;",
		strings.ReplaceAll(branch, "'", "''"), m.repo)
	rows, err := m.runner.QuerySQL(ctx, show)
	if err != nil {
		return SyncRef{}, classifySync(branch, err)
	}
	if len(rows) == 0 {
		return SyncRef{}, &SyncError{
			Branch:  branch,
			Message: fmt.Sprintf("branch %s does not exist in mirror %s", branch, m.repo),
			Err:     ErrBranchNotFound,
		}
	}

	commit, _ := rows[0]["commit_hash"].(string)

	ref := SyncRef{
		Branch:   branch,
		Commit:   commit,
		SyncedAt: time.Now().UTC(),
	}
	m.logger.Info("mirror synced", "branch", branch, "commit", commit)
	return ref, nil
}

// classifySync maps a snow CLI failure onto the sync error taxonomy.
// A timeout counts as the network being unavailable: sync is a shared
// precondition, so there is no transient-and-retry category here.
func classifySync(branch string, err error) error {
	msg := err.Error()
	var cmdErr *snowcli.CommandError
	if errors.As(err, &cmdErr) {
		if stderr := strings.TrimSpace(cmdErr.Stderr); stderr != "" {
			msg = stderr
		}
	}

	kind := ErrNetworkUnavailable
	lower := strings.ToLower(msg)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = ErrNetworkUnavailable

	case strings.Contains(lower, "authentication"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "insufficient privileges"),
		strings.Contains(lower, "invalid credentials"):
		kind = ErrAuthFailed

	case strings.Contains(lower, "branch") && strings.Contains(lower, "does not exist"):
		kind = ErrBranchNotFound
	}

	return &SyncError{
		Branch:  branch,
		Message: msg,
		Err:     errors.Join(kind, err),
	}
}
