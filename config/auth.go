package config

import (
	"strings"
	"time"
)

// TriggerAuthConfig controls verification of the external scheduler that triggers orchestration passes.
// When enabled, requests must carry an OIDC ID token issued by IssuerURL for Audience.
type TriggerAuthConfig struct {
	Enabled   bool   `env:"ENABLED"    envDefault:"false"`
	IssuerURL string `env:"ISSUER_URL" envDefault:"https://accounts.google.com"`
	Audience  string `env:"AUDIENCE"`
	// AllowedEmails restricts tokens to these service account emails. Empty allows any verified caller.
	AllowedEmails []string `env:"ALLOWED_EMAILS" envSeparator:","`
}

// Sanitize normalises trigger auth values and disables verification without an audience.
func (c *TriggerAuthConfig) Sanitize() {
	c.IssuerURL = strings.TrimSuffix(strings.TrimSpace(c.IssuerURL), "/")
	c.IssuerURL = strings.TrimSuffix(c.IssuerURL, "/.well-known/openid-configuration")
	c.Audience = strings.TrimSpace(c.Audience)
	c.AllowedEmails = trimAll(c.AllowedEmails)
	if c.Audience == "" || c.IssuerURL == "" {
		c.Enabled = false
	}
}

// ServiceIdentityConfig holds OAuth2 client credentials used to call the graph and query services.
// An empty TokenURL means outbound calls are unauthenticated (local development).
type ServiceIdentityConfig struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	TokenURL     string        `env:"TOKEN_URL"`
	Scopes       []string      `env:"SCOPES"        envSeparator:" "`
	Audience     string        `env:"AUDIENCE"`
	Timeout      time.Duration `env:"TIMEOUT"       envDefault:"10s"`
}

// Sanitize normalises identity values.
func (c *ServiceIdentityConfig) Sanitize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.Audience = strings.TrimSpace(c.Audience)
	c.Scopes = trimAll(c.Scopes)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Enabled reports whether client credentials are configured.
func (c *ServiceIdentityConfig) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
