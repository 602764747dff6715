// Package httpx exposes the refresh orchestration trigger and the run and parameter endpoints over HTTP.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
	"github.com/target/refresh-orchestrator/internal/service"
)

// RefreshHandlers provides HTTP handlers for orchestration passes and refresh job runs.
type RefreshHandlers struct {
	Orchestrator service.PassRunner
	Initiator    service.Initiator
	Finisher     service.Finisher
	Runs         core.RunRepository
	Logger       *slog.Logger
}

// Orchestrate runs one orchestration pass and returns its summary.
// A pass with failed phases still reports what it did, with status 500.
func (h *RefreshHandlers) Orchestrate(w http.ResponseWriter, r *http.Request) {
	res, err := h.Orchestrator.RunPass(r.Context(), service.TriggerHTTP)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "pass_failed",
			Err:     err,
			Details: res,
		})
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// InitiateRun starts the job immediately, outside its schedule.
func (h *RefreshHandlers) InitiateRun(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	res, err := h.Initiator.Initiate(r.Context(), service.InitiateRequest{RefreshJobID: jobID})
	if err != nil {
		// An error run may have been recorded; return it so the caller can find it.
		var details any
		if res != nil {
			details = res
		}
		WriteServiceError(w, err, details)
		return
	}
	WriteJSON(w, http.StatusCreated, res)
}

// GetRun returns one run of the job.
func (h *RefreshHandlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// FinishRun attempts to finish one pending run now instead of waiting for the next pass.
func (h *RefreshHandlers) FinishRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	res, err := h.Finisher.Finish(r.Context(), run)
	if err != nil {
		WriteServiceError(w, err, nil)
		return
	}

	code := http.StatusOK
	if res.Outcome == service.FinishOutcomeStillRunning {
		code = http.StatusAccepted
	}
	WriteJSON(w, code, res)
}

// loadRun reads the run in the path and checks it belongs to the job in the path.
func (h *RefreshHandlers) loadRun(w http.ResponseWriter, r *http.Request) (*model.RefreshJobRun, bool) {
	jobID, runID := r.PathValue("jobID"), r.PathValue("runID")
	if jobID == "" || runID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id and run id are required")})
		return nil, false
	}
	run, err := h.Runs.GetByID(r.Context(), runID)
	if err == nil && run.RefreshJobID != jobID {
		err = apperrors.NotFoundf("refresh job run %s not found", runID)
	}
	if err != nil {
		if !apperrors.IsNotFound(err) && h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "load refresh job run failed", "run_id", runID, "error", err)
		}
		WriteServiceError(w, err, nil)
		return nil, false
	}
	return run, true
}
