package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Trigger authentication and outbound service identity
//   - clients.go: Graph and query execution service clients
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - logging.go: Log level and output format
//   - services.go: Service mode, orchestrator and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Logging
	Log LogConfig `envPrefix:"LOG_"`

	// Trigger authentication for the orchestration endpoint.
	TriggerAuth TriggerAuthConfig `envPrefix:"TRIGGER_AUTH_"`

	// Outbound identity used when calling the graph and query services.
	ServiceIdentity ServiceIdentityConfig `envPrefix:"SERVICE_IDENTITY_"`

	// External collaborators.
	GraphService GraphServiceConfig `envPrefix:"GRAPH_SERVICE_"`
	QueryService QueryServiceConfig `envPrefix:"QUERY_SERVICE_"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Orchestrator configuration
	Orchestrator OrchestratorConfig `envPrefix:"ORCHESTRATOR_"`

	// Reaper configuration
	Reaper ReaperConfig `envPrefix:"REAPER_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Log.Sanitize()
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.TriggerAuth.Sanitize()
	c.ServiceIdentity.Sanitize()
	c.GraphService.Sanitize()
	c.QueryService.Sanitize()
	c.Orchestrator.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsOrchestratorEnabled returns true if the self-ticking orchestrator is enabled.
func (c *AppConfig) IsOrchestratorEnabled() bool {
	return c.isEnabled(ServiceModeOrchestrator)
}

// IsReaperEnabled returns true if the run retention reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isEnabled(ServiceModeReaper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
