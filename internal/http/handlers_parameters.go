package httpx

import (
	"errors"
	"net/http"

	"github.com/target/refresh-orchestrator/internal/service"
)

// ParameterHandlers provides HTTP handlers for organization query parameters.
type ParameterHandlers struct {
	Svc *service.ParameterService
}

type saveParametersRequest struct {
	Values map[string]string `json:"values"`
}

// Get resolves the organization's parameters, for one user when user_id is given.
func (h *ParameterHandlers) Get(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.Svc.Resolve(r.Context(), r.PathValue("orgID"), r.URL.Query().Get("user_id"))
	if err != nil {
		WriteServiceError(w, err, nil)
		return
	}
	WriteJSON(w, http.StatusOK, resolved)
}

// Put upserts parameter values at organization scope, or user scope when user_id is given.
func (h *ParameterHandlers) Put(w http.ResponseWriter, r *http.Request) {
	var req saveParametersRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Values) == 0 {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: errors.New("values cannot be empty")})
		return
	}

	resolved, err := h.Svc.Save(r.Context(), r.PathValue("orgID"), r.URL.Query().Get("user_id"), req.Values)
	if err != nil {
		WriteServiceError(w, err, nil)
		return
	}
	WriteJSON(w, http.StatusOK, resolved)
}
