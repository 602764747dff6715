package queryclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(config.QueryServiceConfig{BaseURL: srv.URL + "/"}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestClient_Dispatch(t *testing.T) {
	sig := model.Signature{Statement: "SELECT '2025-01-01'", DatabaseConnectionID: "c1", ParentNodeID: "n1"}

	t.Run("returns the query id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/database-queries", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{
				"databaseConnectionId": "c1",
				"parentNodeId":         "n1",
				"statement":            "SELECT '2025-01-01'",
			}, body)

			_, _ = w.Write([]byte(`{"queryId": "q-42"}`))
		})

		id, err := c.Dispatch(context.Background(), sig)
		require.NoError(t, err)
		assert.Equal(t, "q-42", id)
	})

	t.Run("unknown connection is not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "Database connection not found"}`))
		})

		_, err := c.Dispatch(context.Background(), sig)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Contains(t, err.Error(), "Database connection not found")
	})

	t.Run("server failure is a dependency error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := c.Dispatch(context.Background(), sig)
		assert.True(t, apperrors.IsDependency(err))
	})

	t.Run("missing query id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})

		_, err := c.Dispatch(context.Background(), sig)
		assert.True(t, apperrors.IsDependency(err))
	})
}

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    model.ExecutionStatus
		wantErr bool
	}{
		{name: "accepted is running", status: http.StatusAccepted, want: model.ExecutionRunning},
		{name: "ok is finished", status: http.StatusOK, want: model.ExecutionFinished},
		{name: "expired results failed", status: http.StatusGone, want: model.ExecutionFailed},
		{name: "bad query failed", status: http.StatusBadRequest, want: model.ExecutionFailed},
		{name: "server error", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/v1/database-queries/q-1/results", r.URL.Path)
				w.WriteHeader(tt.status)
			})

			got, err := c.Status(context.Background(), "q-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsDependency(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(config.QueryServiceConfig{}, nil)
	assert.EqualError(t, err, "query service base URL is required")
}
