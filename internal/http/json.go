package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const maxRequestBody = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	// Details is included in the body under "details" when set.
	Details any
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]any{"error": p.ErrCode, "message": p.Err.Error()}
	var appErr *apperrors.AppError
	if errors.As(p.Err, &appErr) && appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if p.Details != nil {
		body["details"] = p.Details
	}
	WriteJSON(w, p.Code, body)
}

// WriteServiceError maps a service error onto a status code and writes it.
func WriteServiceError(w http.ResponseWriter, err error, details any) {
	code, errCode := StatusFor(err)
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err, Details: details})
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound, string(apperrors.ErrCodeNotFound)
	case apperrors.IsValidation(err):
		return http.StatusBadRequest, string(apperrors.ErrCodeValidation)
	case apperrors.IsConflict(err):
		return http.StatusConflict, string(apperrors.ErrCodeConflict)
	case apperrors.IsDependency(err):
		return http.StatusBadGateway, string(apperrors.ErrCodeDependency)
	case apperrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	default:
		return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
	}
}
