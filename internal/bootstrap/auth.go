package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/adapters/oidc"
	"github.com/target/refresh-orchestrator/internal/core"
)

// TriggerVerifierConfig contains configuration for trigger token verification.
type TriggerVerifierConfig struct {
	Auth       config.TriggerAuthConfig
	HTTPClient *http.Client // Optional: used for discovery and key fetches
	Logger     *slog.Logger
}

// BuildTriggerVerifier creates the OIDC verifier guarding the API.
// Returns a nil verifier when trigger auth is disabled, which leaves the API open.
//
//nolint:ireturn // callers store the verifier behind core.TriggerVerifier; nil means disabled.
func BuildTriggerVerifier(ctx context.Context, cfg TriggerVerifierConfig) (core.TriggerVerifier, error) {
	if !cfg.Auth.Enabled {
		if cfg.Logger != nil {
			cfg.Logger.Warn("trigger authentication disabled; API accepts unauthenticated requests")
		}
		return nil, nil
	}

	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		IssuerURL:     cfg.Auth.IssuerURL,
		Audience:      cfg.Auth.Audience,
		AllowedEmails: cfg.Auth.AllowedEmails,
		HTTPClient:    cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create trigger verifier: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("trigger authentication enabled",
			"issuer", cfg.Auth.IssuerURL,
			"audience", cfg.Auth.Audience,
			"allowed_emails", len(cfg.Auth.AllowedEmails),
		)
	}
	return v, nil
}
