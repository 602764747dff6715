// Command refresh-orchestrator serves the refresh trigger API and, depending on SERVICES,
// runs self-ticking orchestration passes and the run retention reaper.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) (err error) {
	bootstrap.InitLogger()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.ConfigureLogger(os.Stdout, cfg.Log)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	infra, err := connectInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, infra.close())
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Context:     ctx,
		Config:      &cfg,
		DB:          infra.db,
		RedisClient: infra.redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if cerr := services.Observability.MetricsSink.Close(); cerr != nil {
			logger.WarnContext(ctx, "close statsd client failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          infra.db,
		RedisClient: infra.redis,
		Logger:      logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting refresh orchestrator",
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"graph_service", cfg.GraphService.BaseURL,
		"query_service", cfg.QueryService.BaseURL,
		"trigger_auth", cfg.TriggerAuth.Enabled,
		"run_timeout", cfg.Orchestrator.RunTimeout,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
