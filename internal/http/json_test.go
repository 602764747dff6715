package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", apperrors.NotFound("missing"), http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("initiate: %w", apperrors.NotFound("missing")), http.StatusNotFound, "not_found"},
		{"validation", apperrors.Validation("bad"), http.StatusBadRequest, "validation"},
		{"conflict", apperrors.Conflict("dup"), http.StatusConflict, "conflict"},
		{"dependency", apperrors.Dependency("graph service", errors.New("503")), http.StatusBadGateway, "dependency"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, errCode := StatusFor(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantErr, errCode)
		})
	}
}

func TestWriteServiceError_IncludesFieldAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, apperrors.ValidationField("organization_id", "organization id is required"), map[string]int{"planned": 0})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "organization_id", body["field"])
	assert.Equal(t, map[string]any{"planned": float64(0)}, body["details"])
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Values map[string]string `json:"values"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"values":{"a":"b"}}`))
	require.True(t, DecodeJSON(rec, req, &dst))
	assert.Equal(t, "b", dst.Values["a"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"values":`))
	assert.False(t, DecodeJSON(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
