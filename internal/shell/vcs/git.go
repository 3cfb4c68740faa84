package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// =============================================================================
// Local Git Adapter
// =============================================================================

// Git lists changes using the local git working copy. Change detection runs
// against local history; only the mirror sync talks to the warehouse.
type Git struct {
	repoRoot string
	logger   *slog.Logger
}

// NewGit creates a change lister rooted at the repository working copy.
func NewGit(repoRoot string, logger *slog.Logger) *Git {
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{
		repoRoot: repoRoot,
		logger:   logger.With("component", "git"),
	}
}

// ChangedFiles returns the repository-relative paths that differ between
// baseRef and targetRef, using merge-base semantics (baseRef...targetRef) so
// the result is "what targetRef changed since it diverged from baseRef".
func (g *Git) ChangedFiles(ctx context.Context, baseRef, targetRef string) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", fmt.Sprintf("%s...%s", baseRef, targetRef))
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}

	g.logger.Debug("changed files",
		"base", baseRef,
		"target", targetRef,
		"count", len(paths),
	)
	return paths, nil
}

// ResolveRef resolves a reference to its commit hash.
func (g *Git) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.repoRoot}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}

		kind := ErrGitFailed
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "unknown revision") ||
			strings.Contains(lower, "bad revision") ||
			strings.Contains(lower, "ambiguous argument") {
			kind = ErrBadRevision
		}

		return "", &VcsError{
			Op:      "git " + args[0],
			Message: msg,
			Err:     fmt.Errorf("%w: %v", kind, err),
		}
	}

	return stdout.String(), nil
}
