package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/shell/snowcli"
)

// =============================================================================
// Warehouse Registry Adapter
// =============================================================================

// SnowConfig configures the warehouse-backed registry.
type SnowConfig struct {
	// Repo is the name of the warehouse-side git repository object whose
	// branch checkouts the deployed apps point at.
	Repo string

	// Schema is the namespace listed by List. Upsert and Delete use the
	// schema resolved into each target.
	Schema string
}

// Snow implements Client against the warehouse platform via the snow CLI.
// All operations translate to SQL; upsert is CREATE OR REPLACE, which is what
// makes repeated deploys of an unchanged target a no-op.
type Snow struct {
	runner snowcli.Runner
	config SnowConfig
	logger *slog.Logger
}

// NewSnow creates a warehouse-backed registry client.
func NewSnow(runner snowcli.Runner, config SnowConfig, logger *slog.Logger) *Snow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snow{
		runner: runner,
		config: config,
		logger: logger.With("component", "registry"),
	}
}

// List returns the deployed applications in the configured schema.
func (s *Snow) List(ctx context.Context) ([]DeployedApp, error) {
	query := fmt.Sprintf("SHOW STREAMLITS IN SCHEMA %s;", strings.ToUpper(s.config.Schema))

	rows, err := s.runner.QuerySQL(ctx, query)
	if err != nil {
		return nil, classify("List", "", err)
	}

	apps := make([]DeployedApp, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, DeployedApp{
			Name:    stringField(row, "name"),
			Schema:  stringField(row, "schema_name"),
			Comment: stringField(row, "comment"),
		})
	}
	return apps, nil
}

// Upsert creates or replaces the application object for target.
func (s *Snow) Upsert(ctx context.Context, target deploy.Target) error {
	app := target.App

	if !validBranch(target.Branch) {
		return NewRemoteError("Upsert", app.Name,
			fmt.Sprintf("branch %q contains unsupported characters", target.Branch), ErrInvalidTarget)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE STREAMLIT %s\n", deploy.ObjectName(target.Schema, app.Name))
	fmt.Fprintf(&b, "ROOT_LOCATION = '%s'\n", escape(deploy.RootLocation(s.config.Repo, target.Branch, app.Root)))
	fmt.Fprintf(&b, "MAIN_FILE = '%s'\n", escape(app.MainFile))
	fmt.Fprintf(&b, "QUERY_WAREHOUSE = '%s'", escape(strings.ToUpper(target.Warehouse)))
	if app.Title != "" {
		fmt.Fprintf(&b, "\nTITLE = '%s'", escape(app.Title))
	}
	comment := app.Comment
	if comment == "" {
		comment = fmt.Sprintf("Deployed by snowdeck from branch %s", target.Branch)
	}
	fmt.Fprintf(&b, "\nCOMMENT = '%s';", escape(comment))

	s.logger.Info("upserting application",
		"app", app.Name,
		"branch", target.Branch,
		"schema", target.Schema,
	)

	if _, err := s.runner.RunSQL(ctx, b.String()); err != nil {
		return classify("Upsert", app.Name, err)
	}
	return nil
}

// Delete removes the deployed application. No IF EXISTS: deleting an app that
// is not deployed must surface NotFound.
func (s *Snow) Delete(ctx context.Context, app string) error {
	query := fmt.Sprintf("DROP STREAMLIT %s;", deploy.ObjectName(s.config.Schema, app))

	s.logger.Info("deleting application", "app", app)

	if _, err := s.runner.RunSQL(ctx, query); err != nil {
		return classify("Delete", app, err)
	}
	return nil
}

// =============================================================================
// Error Classification
// =============================================================================

// classify maps a snow CLI failure onto the registry error taxonomy.
// Timeouts and connection problems are transient; everything the platform
// rejects outright is terminal.
func classify(op, app string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewRemoteError(op, app, "operation timed out", errors.Join(ErrTransient, err))
	}

	msg := err.Error()
	var cmdErr *snowcli.CommandError
	if errors.As(err, &cmdErr) {
		if stderr := strings.TrimSpace(cmdErr.Stderr); stderr != "" {
			msg = stderr
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "not found"):
		return NewRemoteError(op, app, msg, errors.Join(ErrNotFound, err))

	case strings.Contains(lower, "insufficient privileges"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "access denied"):
		return NewRemoteError(op, app, msg, errors.Join(ErrPermissionDenied, err))

	case strings.Contains(lower, "already exists"),
		strings.Contains(lower, "is locked"),
		strings.Contains(lower, "conflict"):
		return NewRemoteError(op, app, msg, errors.Join(ErrConflict, err))

	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "temporarily"):
		return NewRemoteError(op, app, msg, errors.Join(ErrTransient, err))

	default:
		return NewRemoteError(op, app, msg, err)
	}
}

// escape makes a value safe inside a single-quoted SQL string.
func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// validBranch accepts the character set git itself allows in common branch
// names. Anything outside it never names a real mirror branch and would only
// smuggle syntax into the checkout path.
func validBranch(branch string) bool {
	if branch == "" {
		return false
	}
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == '/':
		default:
			return false
		}
	}
	return true
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}
