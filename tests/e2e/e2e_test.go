// Package e2e exercises the full HTTP surface against a real listener, a
// fixture monorepo and an in-memory registry. Run with:
//
//	go test -v ./tests/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/shell/api"
	"github.com/dataops-sh/snowdeck/internal/shell/history"
	"github.com/dataops-sh/snowdeck/internal/shell/orchestrator"
	"github.com/dataops-sh/snowdeck/internal/shell/registry"
	"github.com/dataops-sh/snowdeck/internal/shell/vcs"
)

// =============================================================================
// Test Globals
// =============================================================================

var (
	testRegistry *registry.Fake
	testStore    history.Store
	testClient   *http.Client
	baseURL      string
	testServer   *http.Server
	repoRoot     string
)

type mirrorStub struct{}

func (mirrorStub) Sync(ctx context.Context, branch string) (vcs.SyncRef, error) {
	return vcs.SyncRef{Branch: branch, Commit: "deadbeef", SyncedAt: time.Now()}, nil
}

// =============================================================================
// TestMain Setup
// =============================================================================

func TestMain(m *testing.M) {
	code := setup()
	if code != 0 {
		os.Exit(code)
	}

	result := m.Run()

	teardown()

	os.Exit(result)
}

func setup() int {
	var err error
	repoRoot, err = os.MkdirTemp("", "snowdeck-e2e-*")
	if err != nil {
		log.Printf("failed to create fixture repo: %v", err)
		return 1
	}
	for _, name := range []string{"sales_dashboard", "churn_report"} {
		dir := filepath.Join(repoRoot, "apps", name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("failed to create app dir: %v", err)
			return 1
		}
		descriptor := fmt.Sprintf("name: %s\nmain_file: streamlit_app.py\n", name)
		if err := os.WriteFile(filepath.Join(dir, "app.yml"), []byte(descriptor), 0o644); err != nil {
			log.Printf("failed to write descriptor: %v", err)
			return 1
		}
		if err := os.WriteFile(filepath.Join(dir, "streamlit_app.py"), []byte("# app\n"), 0o644); err != nil {
			log.Printf("failed to write entrypoint: %v", err)
			return 1
		}
	}

	testStore, err = history.NewSQLiteStore(":memory:")
	if err != nil {
		log.Printf("failed to open history store: %v", err)
		return 1
	}

	testRegistry = registry.NewFake()
	orch, err := orchestrator.New(orchestrator.Config{
		RepoRoot:         repoRoot,
		AppsRoot:         "apps",
		DefaultWarehouse: "COMPUTE_WH",
		DefaultSchema:    "APPS",
		Registry:         testRegistry,
		Synchronizer:     mirrorStub{},
		History:          testStore,
	})
	if err != nil {
		log.Printf("failed to create orchestrator: %v", err)
		return 1
	}

	handler := api.NewHandler(api.Config{
		Orchestrator:  orch,
		Registry:      testRegistry,
		History:       testStore,
		AppsDir:       filepath.Join(repoRoot, "apps"),
		DefaultBranch: "main",
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Printf("failed to listen: %v", err)
		return 1
	}
	baseURL = "http://" + listener.Addr().String()
	testClient = &http.Client{Timeout: 10 * time.Second}
	testServer = &http.Server{Handler: handler.Routes()}

	go func() {
		if err := testServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	return 0
}

func teardown() {
	if testServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		testServer.Shutdown(ctx)
	}
	if testStore != nil {
		testStore.Close()
	}
	if repoRoot != "" {
		os.RemoveAll(repoRoot)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := testClient.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, path string, body, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("POST %s: marshal: %v", path, err)
	}
	resp, err := testClient.Post(baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decode: %v", path, err)
		}
	}
	return resp.StatusCode
}

// =============================================================================
// Tests
// =============================================================================

func TestE2E_Health(t *testing.T) {
	var body map[string]string
	code := getJSON(t, "/health", &body)
	if code != http.StatusOK {
		t.Fatalf("health returned %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health status = %q", body["status"])
	}
}

func TestE2E_DiscoverApps(t *testing.T) {
	var body map[string][]string
	code := getJSON(t, "/api/v1/apps", &body)
	if code != http.StatusOK {
		t.Fatalf("apps returned %d", code)
	}
	apps := body["apps"]
	if len(apps) != 2 || apps[0] != "churn_report" || apps[1] != "sales_dashboard" {
		t.Fatalf("unexpected apps: %v", apps)
	}
}

func TestE2E_DeployLifecycle(t *testing.T) {
	// Dry run first: nothing must reach the registry.
	var report deploy.BatchReport
	code := postJSON(t, "/api/v1/deploy", map[string]any{"mode": "all", "dry_run": true}, &report)
	if code != http.StatusOK {
		t.Fatalf("dry-run deploy returned %d", code)
	}
	if report.Status != deploy.BatchSuccess {
		t.Fatalf("dry-run status = %s", report.Status)
	}
	if len(testRegistry.UpsertCalls) != 0 {
		t.Fatalf("dry run reached the registry: %v", testRegistry.UpsertCalls)
	}

	// Real deploy of everything.
	code = postJSON(t, "/api/v1/deploy", map[string]any{"mode": "all", "sync_first": true}, &report)
	if code != http.StatusOK {
		t.Fatalf("deploy returned %d", code)
	}
	if report.Status != deploy.BatchSuccess {
		t.Fatalf("deploy status = %s, reason %q", report.Status, report.Reason)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(report.Outcomes))
	}

	// The registry now lists both apps.
	var deployed map[string][]registry.DeployedApp
	code = getJSON(t, "/api/v1/deployed", &deployed)
	if code != http.StatusOK {
		t.Fatalf("deployed returned %d", code)
	}
	if len(deployed["deployed"]) != 2 {
		t.Fatalf("expected 2 deployed apps, got %d", len(deployed["deployed"]))
	}

	// The run was journaled with its outcomes.
	var runs map[string][]history.RunRecord
	code = getJSON(t, "/api/v1/runs?limit=50", &runs)
	if code != http.StatusOK {
		t.Fatalf("runs returned %d", code)
	}
	found := false
	for _, run := range runs["runs"] {
		if run.ID == report.RunID {
			found = true
		}
	}
	if !found {
		t.Fatalf("run %s not journaled", report.RunID)
	}

	var outcomes map[string][]history.OutcomeRecord
	code = getJSON(t, "/api/v1/runs/"+report.RunID+"/outcomes", &outcomes)
	if code != http.StatusOK {
		t.Fatalf("outcomes returned %d", code)
	}
	if len(outcomes["outcomes"]) != 2 {
		t.Fatalf("expected 2 journaled outcomes, got %d", len(outcomes["outcomes"]))
	}
}

func TestE2E_DeploySingleUnknownApp(t *testing.T) {
	var report deploy.BatchReport
	code := postJSON(t, "/api/v1/deploy", map[string]any{"mode": "single", "app": "no_such_app"}, &report)
	if code != http.StatusOK {
		t.Fatalf("deploy returned %d", code)
	}
	if report.Status != deploy.BatchTotalFailure {
		t.Fatalf("expected total failure, got %s", report.Status)
	}
}

func TestE2E_Metrics(t *testing.T) {
	resp, err := testClient.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !bytes.Contains(body, []byte("snowdeck_deploy_runs_total")) {
		t.Fatalf("metrics output missing run counter")
	}
}
