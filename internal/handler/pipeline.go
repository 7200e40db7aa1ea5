package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

// PipelineHandler serves run creation, run lookup and the dashboard.
type PipelineHandler struct {
	runs   *run.Service
	logger *slog.Logger
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(runs *run.Service, logger *slog.Logger) *PipelineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{runs: runs, logger: logger}
}

// StartRun persists a pending run and hands it to the executor. The response
// does not wait for any step.
// POST /api/v1/pipeline/run
func (h *PipelineHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req model.RunRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	created, err := h.runs.CreateRun(r.Context(), run.CreateParams{
		ChannelID:     req.ChannelID,
		Topic:         req.Topic,
		BrandName:     req.BrandName,
		DryRun:        req.DryRun,
		SkipMediaEdit: req.SkipMediaEdit,
	})
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.RunAccepted{
		RunID:     created.ID,
		Status:    created.Status,
		ChannelID: created.ChannelID,
		Topic:     created.Topic,
	})
}

// ListRuns returns one page of runs, newest first.
// GET /api/v1/pipeline/runs
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r, run.DefaultListLimit, run.MaxListLimit)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}

	runs, total, err := h.runs.ListRuns(r.Context(), model.RunFilter{
		ChannelID: queryString(r, "channel_id"),
		Status:    model.RunStatus(queryString(r, "status")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	if runs == nil {
		runs = []*model.PipelineRun{}
	}

	writeJSON(w, http.StatusOK, model.ListResponse[*model.PipelineRun]{
		Items:  runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun returns the full run record.
// GET /api/v1/pipeline/runs/{run_id}
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	pr, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// GetStatus returns the compact progress view of a run.
// GET /api/v1/status/{run_id}
func (h *PipelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pr, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	result := pr.Result
	if result == nil {
		result = map[string]any{}
	}
	writeJSON(w, http.StatusOK, model.RunStatusResponse{
		RunID:        pr.ID,
		Status:       pr.Status,
		CurrentAgent: pr.CurrentStep,
		Errors:       pr.Errors,
		Result:       result,
	})
}

// Summary returns run counts, the mean completed duration and recent runs.
// GET /api/v1/dashboard/summary
func (h *PipelineHandler) Summary(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", run.DefaultSummaryLimit)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	sum, err := h.runs.Summary(r.Context(), limit)
	if err != nil {
		respondError(w, h.logger, r, err)
		return
	}
	if sum.RecentRuns == nil {
		sum.RecentRuns = []*model.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, sum)
}
