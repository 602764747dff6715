package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(rec, httptest.NewRequest(method, "/healthz", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if method == http.MethodHead {
				assert.Zero(t, rec.Body.Len())
			} else {
				assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	up := ReadinessCheck{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := ReadinessCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []ReadinessCheck
		wantStatus int
		wantBody   readyResponse
	}{
		{
			name:       "no checks configured",
			wantStatus: http.StatusOK,
			wantBody:   readyResponse{Status: "ok"},
		},
		{
			name:       "all reachable",
			checks:     []ReadinessCheck{up},
			wantStatus: http.StatusOK,
			wantBody:   readyResponse{Status: "ok", Checks: map[string]string{"postgres": "ok"}},
		},
		{
			name:       "one dependency down",
			checks:     []ReadinessCheck{up, down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: readyResponse{
				Status: "unavailable",
				Checks: map[string]string{"postgres": "ok", "redis": "connection refused"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			readyHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			var got readyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestReadyHandler_SharesDeadline(t *testing.T) {
	var deadlines []time.Time
	probe := func(ctx context.Context) error {
		d, ok := ctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, d)
		return nil
	}
	rec := httptest.NewRecorder()
	readyHandler([]ReadinessCheck{{Name: "a", Ping: probe}, {Name: "b", Ping: probe}})(
		rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Len(t, deadlines, 2)
	assert.Equal(t, deadlines[0], deadlines[1])
}
