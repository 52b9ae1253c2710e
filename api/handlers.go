/*
handlers.go - HTTP API handlers for the insights service

PURPOSE:
  Exposes the insights pipeline via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the pipeline.

ENDPOINTS:
  Pipeline:
    POST   /api/pipeline/trigger       Run the pipeline (optional {"source_dir"})
    POST   /trigger-automation         Legacy alias

  Insights:
    GET    /api/insights               Current snapshot plus run metadata
    GET    /api/insights/export.csv    Trends and anomalies as CSV
    GET    /api/insights/export.xlsx   Trends, anomalies and summary workbook
    GET    /get-insights               Legacy alias, bare snapshot

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Write a scenario's archives to the data dir

  Ops:
    GET    /health                     Liveness and snapshot state

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call the pipeline
  4. Serialize response
  5. Map errors to APIError

ERROR HANDLING:
  Errors are returned as APIError JSON with appropriate HTTP status:
  - 400: Invalid body
  - 404: No archives, unknown scenario, nothing to export
  - 409: A run is already in flight (trigger or scenario load)
  - 422: Schema mismatch or unreadable archive
  - 500: Internal errors

  Querying before any run is not an error: it returns 200 with the
  not_triggered marker.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: APIError and error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/warp/insights-engine/export"
	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/scenarios"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pipeline is the part of *insights.Pipeline the handlers use.
type Pipeline interface {
	Trigger(ctx context.Context, dir string) (*insights.Run, error)
	Latest() (*insights.Snapshot, *insights.Run, bool)
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config holds handler settings.
type Config struct {
	DataDir     string
	StoreDriver string
	RunTimeout  time.Duration
	Logger      *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	pipeline Pipeline
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler around the pipeline.
func NewHandler(p Pipeline, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		pipeline: p,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "api")),
		validate: validator.New(),
	}
}

// =============================================================================
// PIPELINE HANDLERS
// =============================================================================

// Trigger runs the pipeline and waits for it to finish.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := h.decode(r, &req, true); err != nil {
		writeError(w, r, invalidRequest(err))
		return
	}

	dir := req.SourceDir
	if dir == "" {
		dir = h.cfg.DataDir
	}

	run, err := h.runPipeline(r, dir)
	if err != nil {
		writeError(w, r, pipelineError(err))
		return
	}

	writeJSON(w, r, http.StatusOK, TriggerResponse{
		Status:  StatusSuccess,
		Message: "Automation pipeline completed.",
		Run:     toRunDTO(*run),
	})
}

func (h *Handler) runPipeline(r *http.Request, dir string) (*insights.Run, error) {
	ctx := r.Context()
	if h.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RunTimeout)
		defer cancel()
	}

	run, err := h.pipeline.Trigger(ctx, dir)
	if err != nil {
		h.logger.WarnContext(ctx, "Trigger failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return nil, err
	}
	return run, nil
}

// =============================================================================
// INSIGHTS HANDLERS
// =============================================================================

// GetInsights returns the current snapshot with its run metadata, or the
// not_triggered marker.
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	snap, run, ok := h.pipeline.Latest()
	if !ok {
		writeJSON(w, r, http.StatusOK, notTriggered)
		return
	}
	dto := toRunDTO(*run)
	writeJSON(w, r, http.StatusOK, InsightsResponse{Snapshot: *snap, Run: &dto})
}

// GetInsightsLegacy returns the bare snapshot, or the not_triggered marker.
func (h *Handler) GetInsightsLegacy(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := h.pipeline.Latest()
	if !ok {
		writeJSON(w, r, http.StatusOK, notTriggered)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// ExportCSV downloads the current snapshot as CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := h.pipeline.Latest()
	if !ok {
		writeError(w, r, newAPIError(http.StatusNotFound, CodeNotTriggered, "Pipeline not yet triggered.", nil))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, *snap); err != nil {
		writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "Failed to export CSV", err.Error()))
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", "insights.csv", buf.Bytes())
}

// ExportXLSX downloads the current snapshot as an Excel workbook.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	snap, run, ok := h.pipeline.Latest()
	if !ok {
		writeError(w, r, newAPIError(http.StatusNotFound, CodeNotTriggered, "Pipeline not yet triggered.", nil))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, *snap, run); err != nil {
		writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "Failed to export workbook", err.Error()))
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "insights.xlsx", buf.Bytes())
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list := scenarios.List()
	dtos := make([]ScenarioDTO, len(list))
	for i, s := range list {
		dtos[i] = toScenarioDTO(s)
	}
	writeJSON(w, r, http.StatusOK, dtos)
}

// LoadScenario replaces the archives in the data directory with a
// scenario's, optionally running the pipeline afterwards.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req, false); err != nil {
		writeError(w, r, invalidRequest(err))
		return
	}

	s, ok := scenarios.Get(req.ScenarioID)
	if !ok {
		writeError(w, r, newAPIError(http.StatusNotFound, CodeNotFound, "Unknown scenario", req.ScenarioID))
		return
	}

	// Written under the pipeline guard so no run reads a half-replaced set.
	var paths []string
	err := h.pipeline.Exclusive(r.Context(), func(context.Context) error {
		var werr error
		paths, werr = scenarios.Write(h.cfg.DataDir, s)
		return werr
	})
	switch {
	case errors.Is(err, insights.ErrBusy):
		writeError(w, r, pipelineError(err))
		return
	case err != nil:
		writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "Failed to write scenario", err.Error()))
		return
	}
	h.logger.InfoContext(r.Context(), "Scenario loaded",
		slog.String("scenario", s.ID),
		slog.Int("archives", len(paths)))

	resp := LoadScenarioResponse{
		Status:   StatusLoaded,
		Scenario: s.ID,
		Archives: toScenarioDTO(s).Archives,
	}
	if req.Trigger {
		run, err := h.runPipeline(r, h.cfg.DataDir)
		if err != nil {
			writeError(w, r, pipelineError(err))
			return
		}
		dto := toRunDTO(*run)
		resp.Run = &dto
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// =============================================================================
// OPS HANDLERS
// =============================================================================

// Health reports liveness and whether a snapshot is being served.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{
		Status:  StatusOK,
		Store:   h.cfg.StoreDriver,
		DataDir: h.cfg.DataDir,
	}
	if _, run, ok := h.pipeline.Latest(); ok {
		dto := toRunDTO(*run)
		resp.HasSnapshot = true
		resp.LastRun = &dto
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into v and validates it. An empty body is
// accepted only when optional is set.
func (h *Handler) decode(r *http.Request, v any, optional bool) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return err
		}
	}
	return h.validate.Struct(v)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	if err := render.Render(w, r, apiErr); err != nil {
		http.Error(w, apiErr.Message, apiErr.StatusCode)
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
