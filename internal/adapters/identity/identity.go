// Package identity builds the HTTP client the engine uses to call the graph and query services.
package identity

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/refresh-orchestrator/config"
)

// NewHTTPClient returns a client that attaches a client-credentials bearer token to every request.
// Without a token URL it returns a plain client so local stacks can run unauthenticated.
//
// ctx only carries the base transport for token requests; cancelling it does not affect the client.
func NewHTTPClient(ctx context.Context, cfg config.ServiceIdentityConfig) *http.Client {
	base := &http.Client{Timeout: cfg.Timeout}
	if !cfg.Enabled() {
		return base
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleAutoDetect,
	}
	if cfg.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}

	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)
	client := cc.Client(tokenCtx)
	client.Timeout = cfg.Timeout
	return client
}
