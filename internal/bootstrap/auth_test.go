package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/config"
)

func TestBuildTriggerVerifier_Disabled(t *testing.T) {
	v, err := BuildTriggerVerifier(context.Background(), TriggerVerifierConfig{
		Auth:   config.TriggerAuthConfig{Enabled: false, Audience: "https://orchestrator.example.com"},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBuildTriggerVerifier_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	v, err := BuildTriggerVerifier(context.Background(), TriggerVerifierConfig{
		Auth: config.TriggerAuthConfig{
			Enabled:   true,
			IssuerURL: srv.URL,
			Audience:  "https://orchestrator.example.com",
		},
		HTTPClient: srv.Client(),
		Logger:     discardLogger(),
	})
	require.Error(t, err)
	assert.Nil(t, v)
	assert.Contains(t, err.Error(), "create trigger verifier")
}
