package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/runlog"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/runner"
)

// Runner executes export groups.
type Runner interface {
	Run(ctx context.Context, group string) (*runner.Report, error)
	Has(group string) bool
	Groups() []string
}

// Jobs starts detached background work.
type Jobs interface {
	Go(name string, fn func(ctx context.Context)) bool
}

// ExportHandler serves the export triggers.
type ExportHandler struct {
	runner Runner
	jobs   Jobs
	runs   runlog.Log
	logger *slog.Logger
}

// NewExportHandler creates the trigger handlers. runs may be nil.
func NewExportHandler(r Runner, jobs Jobs, runs runlog.Log, logger *slog.Logger) *ExportHandler {
	if runs == nil {
		runs = runlog.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{runner: r, jobs: jobs, runs: runs, logger: logger}
}

// Run handles POST /v1/exports/{group}: the group runs to completion
// before the response is written.
func (h *ExportHandler) Run(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	group := chi.URLParam(r, "group")
	if !h.runner.Has(group) {
		writeError(w, http.StatusNotFound, "unknown export group: "+group, requestID)
		return
	}

	report, err := h.runner.Run(r.Context(), group)
	resp := StatusResponse{RequestID: requestID, Group: group}
	if report != nil {
		resp.RunID = report.RunID
		resp.Outcomes = report.Outcomes
	}
	if err != nil {
		resp.Status, resp.Message = "error", err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Status, resp.Message = "success", "Function executed successfully"
	writeJSON(w, http.StatusOK, resp)
}

// Start handles POST /v1/exports/{group}/async: the group runs in the
// background and the response is immediate.
func (h *ExportHandler) Start(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	group := chi.URLParam(r, "group")
	if !h.runner.Has(group) {
		writeError(w, http.StatusNotFound, "unknown export group: "+group, requestID)
		return
	}

	logger := h.logger.With("group", group, "request_id", requestID)
	started := h.jobs.Go("export "+group, func(ctx context.Context) {
		if _, err := h.runner.Run(ctx, group); err != nil {
			logger.Error("background export failed", "error", err)
		}
	})
	if !started {
		writeError(w, http.StatusServiceUnavailable, "shutting down", requestID)
		return
	}

	writeJSON(w, http.StatusAccepted, StatusResponse{
		Status:    "started",
		Message:   "Background export job started successfully",
		RequestID: requestID,
		Group:     group,
	})
}

// Groups handles GET /v1/exports.
func (h *ExportHandler) Groups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"groups": h.runner.Groups()})
}

// Runs handles GET /v1/runs?limit=N.
func (h *ExportHandler) Runs(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000", requestID)
			return
		}
		limit = n
	}

	entries, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), requestID)
		return
	}
	if entries == nil {
		entries = []runlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// NewRouter wires the trigger routes. extra middleware runs inside the
// default chain.
func NewRouter(h *ExportHandler, logger *slog.Logger, extra ...func(http.Handler) http.Handler) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(DefaultMiddleware(logger)...)
	router.Use(extra...)

	router.Get("/health", Health)
	router.Route("/v1", func(r chi.Router) {
		r.Get("/exports", h.Groups)
		r.Post("/exports/{group}", h.Run)
		r.Post("/exports/{group}/async", h.Start)
		r.Get("/runs", h.Runs)
	})
	return router
}
