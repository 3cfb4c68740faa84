// Package api provides the optional HTTP status surface: discovered apps,
// deployed apps, run history and a deploy trigger. The CLI is the primary
// interface; this server exists for dashboards and CI probes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
	"github.com/dataops-sh/snowdeck/internal/core/manifest"
	"github.com/dataops-sh/snowdeck/internal/shell/history"
	"github.com/dataops-sh/snowdeck/internal/shell/orchestrator"
	"github.com/dataops-sh/snowdeck/internal/shell/registry"
)

// =============================================================================
// Handler
// =============================================================================

// Config wires the handler's collaborators.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     registry.Client

	// History is optional; without it the runs endpoints return 404.
	History history.Store

	// AppsDir is the absolute path of the apps directory for discovery.
	AppsDir string

	// DefaultBranch is used when a deploy request names no branch.
	DefaultBranch string

	Logger *slog.Logger
}

// Handler serves the status API.
type Handler struct {
	config  Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(config Config) *Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handler{
		config:  config,
		metrics: NewMetrics(),
		logger:  config.Logger.With("component", "api"),
	}
}

// Routes builds the chi router for the status API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.jsonContentType)
		r.Get("/apps", h.handleListApps)
		r.Get("/deployed", h.handleListDeployed)
		r.Post("/deploy", h.handleDeploy)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{id}/outcomes", h.handleRunOutcomes)
	})

	return r
}

func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	names, err := manifest.Discover(h.config.AppsDir)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"apps": names})
}

func (h *Handler) handleListDeployed(w http.ResponseWriter, r *http.Request) {
	apps, err := h.config.Registry.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	if apps == nil {
		apps = []registry.DeployedApp{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deployed": apps})
}

// deployRequest is the POST /deploy body.
type deployRequest struct {
	Mode        string `json:"mode"` // "single", "all" or "changed"
	App         string `json:"app,omitempty"`
	BaselineRef string `json:"baseline_ref,omitempty"`
	Branch      string `json:"branch,omitempty"`
	DryRun      bool   `json:"dry_run"`
	SyncFirst   bool   `json:"sync_first"`
	MaxParallel int    `json:"max_parallel,omitempty"`
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var sel deploy.Selection
	switch deploy.SelectionMode(req.Mode) {
	case deploy.ModeSingle:
		if req.App == "" {
			h.writeError(w, http.StatusBadRequest, errors.New("single mode requires an app name"))
			return
		}
		sel = deploy.Single(req.App)
	case deploy.ModeAll:
		sel = deploy.All()
	case deploy.ModeChanged:
		if req.BaselineRef == "" {
			h.writeError(w, http.StatusBadRequest, errors.New("changed mode requires a baseline_ref"))
			return
		}
		sel = deploy.ChangedSince(req.BaselineRef)
	default:
		h.writeError(w, http.StatusBadRequest, errors.New("mode must be single, all or changed"))
		return
	}

	branch := req.Branch
	if branch == "" {
		branch = h.config.DefaultBranch
	}

	opts := deploy.DefaultOptions()
	opts.DryRun = req.DryRun
	opts.SyncFirst = req.SyncFirst
	if req.MaxParallel > 0 {
		opts.MaxParallel = req.MaxParallel
	}

	report := h.config.Orchestrator.Run(r.Context(), sel, branch, opts)
	h.metrics.ObserveRun(report)

	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.config.History == nil {
		h.writeError(w, http.StatusNotFound, errors.New("run history is not enabled"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := h.config.History.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.RunRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) handleRunOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.config.History == nil {
		h.writeError(w, http.StatusNotFound, errors.New("run history is not enabled"))
		return
	}

	id := chi.URLParam(r, "id")
	outcomes, err := h.config.History.GetRunOutcomes(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if outcomes == nil {
		outcomes = []history.OutcomeRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// =============================================================================
// Response Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("request failed", "status", status, "error", err)
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
