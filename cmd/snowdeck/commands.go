package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/core/manifest"
	"github.com/dataops-sh/snowdeck/internal/shell/history"
	"github.com/dataops-sh/snowdeck/internal/shell/orchestrator"
	"github.com/dataops-sh/snowdeck/internal/shell/registry"
	"github.com/dataops-sh/snowdeck/internal/shell/snowcli"
	"github.com/dataops-sh/snowdeck/internal/shell/vcs"
)

// dispatch routes the command to the appropriate handler.
func dispatch(cmd string, args []string, cfg *Config, logger *slog.Logger) int {
	switch cmd {
	case "deploy":
		return deployCmd(args, cfg, logger)
	case "apps":
		return appsCmd(args, cfg)
	case "deployed":
		return deployedCmd(args, cfg, logger)
	case "delete":
		return deleteCmd(args, cfg, logger)
	case "sync":
		return syncCmd(args, cfg, logger)
	case "validate":
		return validateCmd(args, cfg)
	case "history":
		return historyCmd(args, cfg)
	case "serve":
		return serveCmd(args, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		return ExitUsageError
	}
}

// =============================================================================
// Wiring
// =============================================================================

// services bundles the collaborators a remote-touching command needs.
type services struct {
	registry registry.Client
	orch     *orchestrator.Orchestrator
	history  history.Store
}

// newServices wires the snow CLI, registry, mirror and journal from config.
func newServices(cfg *Config, logger *slog.Logger) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runner := snowcli.NewCLI(cfg.Warehouse.SnowBinary, cfg.Warehouse.Connection, logger)
	reg := registry.NewSnow(runner, registry.SnowConfig{
		Repo:   cfg.Warehouse.GitRepository,
		Schema: cfg.Warehouse.Schema,
	}, logger)
	mirror := vcs.NewMirror(runner, cfg.Warehouse.GitRepository, logger)

	var store history.Store
	if cfg.History.Enabled {
		s, err := history.NewSQLiteStore(cfg.History.DSN)
		if err != nil {
			// The journal is an audit trail, never a precondition for
			// deploying. Run without it.
			logger.Warn("run journal unavailable", "dsn", cfg.History.DSN, "error", err)
		} else {
			store = s
		}
	}

	orchCfg := orchestrator.Config{
		RepoRoot:         cfg.Repo.Root,
		AppsRoot:         cfg.Repo.AppsDir,
		DefaultWarehouse: cfg.Warehouse.QueryWarehouse,
		DefaultSchema:    cfg.Warehouse.Schema,
		Registry:         reg,
		Synchronizer:     mirror,
		Changes:          vcs.NewGit(cfg.Repo.Root, logger),
		Logger:           logger,
	}
	if store != nil {
		orchCfg.History = store
	}

	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	return &services{registry: reg, orch: orch, history: store}, nil
}

// Close releases the journal, if open.
func (s *services) Close() {
	if s.history != nil {
		s.history.Close()
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so an
// interrupted run still produces a report with the remaining apps skipped.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func appsDir(cfg *Config) string {
	return filepath.Join(cfg.Repo.Root, cfg.Repo.AppsDir)
}

// =============================================================================
// deploy
// =============================================================================

func deployCmd(args []string, cfg *Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	app := fs.String("app", "", "Deploy a single application by name")
	all := fs.Bool("all", false, "Deploy every discovered application")
	changedSince := fs.String("changed-since", "", "Deploy applications changed since this git ref")
	branch := fs.String("branch", "", "Branch to deploy (default from config)")
	dryRun := fs.Bool("dry-run", false, "Report what would be deployed without deploying")
	syncFirst := fs.Bool("sync", false, "Refresh the warehouse mirror before deploying (default on for -all/-changed-since)")
	maxParallel := fs.Int("max-parallel", 0, "Concurrent per-app deployments (default from config)")
	stopOnError := fs.Bool("stop-on-error", false, "Abort remaining applications after the first failure")
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	var sel deploy.Selection
	scopes := 0
	if *app != "" {
		sel = deploy.Single(*app)
		scopes++
	}
	if *all {
		sel = deploy.All()
		scopes++
	}
	if *changedSince != "" {
		sel = deploy.ChangedSince(*changedSince)
		scopes++
	}
	if scopes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -app, -all or -changed-since is required")
		return ExitUsageError
	}

	opts := cfg.Deploy.Options()
	opts.DryRun = *dryRun
	opts.ContinueOnError = !*stopOnError
	if *maxParallel > 0 {
		opts.MaxParallel = *maxParallel
	}

	// Batch scopes sync by default; a single-app deploy is the quick path
	// and trusts the current mirror unless asked otherwise.
	opts.SyncFirst = sel.Mode != deploy.ModeSingle
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "sync" {
			opts.SyncFirst = *syncFirst
		}
	})

	svc, err := newServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	target := *branch
	if target == "" {
		target = cfg.Repo.Branch
	}

	report := svc.orch.Run(ctx, sel, target, opts)
	if err := printReport(report, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print report: %v\n", err)
	}
	return exitCode(report)
}

// exitCode maps a batch status to the process exit code.
func exitCode(report deploy.BatchReport) int {
	switch report.Status {
	case deploy.BatchSuccess, deploy.BatchEmpty:
		return ExitSuccess
	case deploy.BatchPartialFailure:
		return ExitPartialFailure
	default:
		return ExitTotalFailure
	}
}

func printReport(report deploy.BatchReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	deployed, skipped, failed := report.Counts()
	fmt.Printf("run %s  branch=%s mode=%s status=%s  %d deployed, %d skipped, %d failed  (%s)\n",
		report.RunID, report.Branch, report.Mode, report.Status,
		deployed, skipped, failed, report.Duration.Round(time.Millisecond))
	if report.Reason != "" {
		fmt.Printf("  reason: %s\n", report.Reason)
	}
	for _, o := range report.Outcomes {
		line := fmt.Sprintf("  %-24s %-9s", o.App, o.Status)
		if o.Reason != "" {
			line += "  " + o.Reason
		}
		fmt.Println(line)
	}
	return nil
}

// =============================================================================
// apps / validate
// =============================================================================

func appsCmd(args []string, cfg *Config) int {
	fs := flag.NewFlagSet("apps", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	names, err := manifest.Discover(appsDir(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to discover applications: %v\n", err)
		return ExitConfigError
	}

	if *asJSON {
		if names == nil {
			names = []string{}
		}
		json.NewEncoder(os.Stdout).Encode(names)
		return ExitSuccess
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return ExitSuccess
}

func validateCmd(args []string, cfg *Config) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	dir := appsDir(cfg)
	names, err := manifest.Discover(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to discover applications: %v\n", err)
		return ExitConfigError
	}

	invalid := 0
	for _, name := range names {
		root := manifest.Roots(cfg.Repo.AppsDir, []string{name})[name]
		if _, err := manifest.Load(filepath.Join(dir, name), root); err != nil {
			invalid++
			fmt.Printf("%-24s invalid  %v\n", name, err)
			continue
		}
		fmt.Printf("%-24s ok\n", name)
	}

	if invalid > 0 {
		fmt.Printf("%d of %d manifests invalid\n", invalid, len(names))
		return ExitTotalFailure
	}
	return ExitSuccess
}

// =============================================================================
// deployed / delete
// =============================================================================

func deployedCmd(args []string, cfg *Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("deployed", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	apps, err := svc.registry.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list deployed applications: %v\n", err)
		return ExitRemoteError
	}

	if *asJSON {
		if apps == nil {
			apps = []registry.DeployedApp{}
		}
		json.NewEncoder(os.Stdout).Encode(apps)
		return ExitSuccess
	}
	for _, app := range apps {
		fmt.Printf("%-24s %s\n", app.Name, app.Schema)
	}
	return ExitSuccess
}

func deleteCmd(args []string, cfg *Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: snowdeck delete <app>")
		return ExitUsageError
	}
	app := fs.Arg(0)

	svc, err := newServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := svc.orch.Delete(ctx, app, cfg.Deploy.RemoteTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "failed to delete %s: %v\n", app, err)
		return ExitRemoteError
	}
	fmt.Printf("deleted %s\n", app)
	return ExitSuccess
}

// =============================================================================
// sync
// =============================================================================

func syncCmd(args []string, cfg *Config, logger *slog.Logger) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	branch := fs.String("branch", "", "Branch to sync (default from config)")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	target := *branch
	if target == "" {
		target = cfg.Repo.Branch
	}

	ref, err := svc.orch.Sync(ctx, target, cfg.Deploy.RemoteTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		return ExitRemoteError
	}
	fmt.Printf("synced %s at %s\n", ref.Branch, ref.Commit)
	return ExitSuccess
}

// =============================================================================
// history
// =============================================================================

func historyCmd(args []string, cfg *Config) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "run history is not enabled")
		return ExitHistoryError
	}

	store, err := history.NewSQLiteStore(cfg.History.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open run journal: %v\n", err)
		return ExitHistoryError
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// With a run id argument, show its per-app outcomes instead.
	if fs.NArg() == 1 {
		outcomes, err := store.GetRunOutcomes(ctx, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read run: %v\n", err)
			return ExitHistoryError
		}
		if *asJSON {
			json.NewEncoder(os.Stdout).Encode(outcomes)
			return ExitSuccess
		}
		for _, o := range outcomes {
			line := fmt.Sprintf("%-24s %-9s", o.App, o.Status)
			if o.Reason != "" {
				line += "  " + o.Reason
			}
			fmt.Println(line)
		}
		return ExitSuccess
	}

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list runs: %v\n", err)
		return ExitHistoryError
	}

	if *asJSON {
		if runs == nil {
			runs = []history.RunRecord{}
		}
		json.NewEncoder(os.Stdout).Encode(runs)
		return ExitSuccess
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  branch=%s mode=%s status=%s  %d deployed, %d skipped, %d failed\n",
			run.StartedAt.Format(time.RFC3339), run.ID, run.Branch, run.Mode,
			run.Status, run.Deployed, run.Skipped, run.Failed)
	}
	return ExitSuccess
}
