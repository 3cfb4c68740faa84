// Package snowcli wraps the warehouse vendor's `snow` command line client.
// All remote platform access (SQL against the warehouse) goes through the
// Runner interface so adapters can be tested without the binary installed.
package snowcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCommandFailed is returned when the CLI exits non-zero.
	ErrCommandFailed = errors.New("snow command failed")

	// ErrBadOutput is returned when the CLI output cannot be parsed.
	ErrBadOutput = errors.New("unparseable snow output")
)

// CommandError carries the CLI's stderr so callers can classify the failure.
type CommandError struct {
	Query  string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("snow sql: %s", stderr)
	}
	return fmt.Sprintf("snow sql: %v", e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Runner Interface
// =============================================================================

// Runner executes SQL against the warehouse.
type Runner interface {
	// RunSQL executes a statement and returns its raw stdout.
	RunSQL(ctx context.Context, query string) (string, error)

	// QuerySQL executes a statement with JSON output and returns the result
	// rows as generic maps.
	QuerySQL(ctx context.Context, query string) ([]map[string]any, error)
}

// =============================================================================
// CLI Runner
// =============================================================================

// CLI is the production Runner: it shells out to the `snow` binary with a
// named connection profile. Authentication lives entirely in the profile;
// this process never sees credentials.
type CLI struct {
	binary     string
	connection string
	logger     *slog.Logger
}

// NewCLI creates a CLI runner for the given connection profile.
func NewCLI(binary, connection string, logger *slog.Logger) *CLI {
	if binary == "" {
		binary = "snow"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{
		binary:     binary,
		connection: connection,
		logger:     logger.With("component", "snowcli"),
	}
}

// RunSQL executes a statement and returns its raw stdout.
func (c *CLI) RunSQL(ctx context.Context, query string) (string, error) {
	return c.run(ctx, query, nil)
}

// QuerySQL executes a statement and parses the CLI's JSON output.
func (c *CLI) QuerySQL(ctx context.Context, query string) ([]map[string]any, error) {
	out, err := c.run(ctx, query, []string{"--format", "json"})
	if err != nil {
		return nil, err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return rows, nil
}

func (c *CLI) run(ctx context.Context, query string, extraArgs []string) (string, error) {
	args := []string{"sql", "-q", query, "--connection", c.connection}
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("executing sql", "query", query)

	if err := cmd.Run(); err != nil {
		// A killed process means the context expired; surface that instead
		// of the opaque exit status so callers can classify it as a timeout.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &CommandError{
			Query:  query,
			Stderr: stderr.String(),
			Err:    errors.Join(ErrCommandFailed, err),
		}
	}

	return stdout.String(), nil
}
