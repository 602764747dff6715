// Package oidc verifies the OIDC ID tokens that schedulers attach to orchestration trigger requests.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// ErrCallerNotAllowed is returned for valid tokens whose email is not on the allowlist.
var ErrCallerNotAllowed = errors.New("caller is not allowed to trigger orchestration")

// VerifierConfig holds configuration for the trigger verifier.
type VerifierConfig struct {
	IssuerURL     string
	Audience      string
	AllowedEmails []string
	HTTPClient    *http.Client // Optional, defaults to a 30s client
}

// Verifier implements core.TriggerVerifier using go-oidc.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
	allowed  map[string]struct{}
}

var _ core.TriggerVerifier = (*Verifier)(nil)

// NewVerifier discovers the issuer's signing keys and builds a verifier for the audience.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// The provider keeps this context for later JWKS refreshes.
	discoveryCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return newVerifier(op.Verifier(&gooidc.Config{ClientID: cfg.Audience}), cfg.AllowedEmails), nil
}

func newVerifier(v *gooidc.IDTokenVerifier, allowedEmails []string) *Verifier {
	allowed := make(map[string]struct{}, len(allowedEmails))
	for _, e := range allowedEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Verifier{verifier: v, allowed: allowed}
}

type triggerClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Verify checks the token's signature, issuer, audience and expiry. With an allowlist configured the
// token must also carry a verified email on the list.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (model.Caller, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return model.Caller{}, errors.New("bearer token is required")
	}
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return model.Caller{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims triggerClaims
	if err := tok.Claims(&claims); err != nil {
		return model.Caller{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	caller := model.Caller{Subject: tok.Subject, Email: strings.ToLower(claims.Email)}

	if len(v.allowed) == 0 {
		return caller, nil
	}
	if !claims.EmailVerified {
		return caller, fmt.Errorf("email not verified: %w", ErrCallerNotAllowed)
	}
	if _, ok := v.allowed[caller.Email]; !ok {
		return caller, fmt.Errorf("%s: %w", caller.Email, ErrCallerNotAllowed)
	}
	return caller, nil
}
