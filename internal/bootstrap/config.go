package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/refresh-orchestrator/config"
)

// InitLogger installs a JSON logger at info level. It is used until the configuration is loaded.
func InitLogger() *slog.Logger {
	return ConfigureLogger(os.Stdout, config.LogConfig{Level: "info", Format: config.LogFormatJSON})
}

// ConfigureLogger builds the process logger from cfg, writes to w and installs it as the slog default.
func ConfigureLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == config.LogFormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler).With("service", "refresh-orchestrator")
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads the given dotenv files (".env" when none are named), then the environment.
// Missing dotenv files are ignored; variables already set in the environment win.
func LoadConfig(files ...string) (config.AppConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.AppConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig checks that at least one service mode is enabled and that the
// modes which initiate refreshes can reach the graph and query services.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	if services[config.ServiceModeHTTP] || services[config.ServiceModeOrchestrator] {
		var errs []error
		if cfg.GraphService.BaseURL == "" {
			errs = append(errs, errors.New("GRAPH_SERVICE_BASE_URL is required"))
		}
		if cfg.QueryService.BaseURL == "" {
			errs = append(errs, errors.New("QUERY_SERVICE_BASE_URL is required"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("invalid collaborator configuration: %w", errors.Join(errs...))
		}
	}
	return nil
}

// GetEnabledServices returns the enabled service names in their canonical order.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// ValidateServiceConfig reports the parse error.
		return []string{}
	}

	enabled := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabled = append(enabled, string(mode))
		}
	}
	return enabled
}
