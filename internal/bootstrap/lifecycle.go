package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/refresh-orchestrator/config"
)

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceUnit is one long-running part of the process. run must return once ctx is done.
type serviceUnit struct {
	mode config.ServiceMode
	run  func(ctx context.Context) error
}

// RunServicesWithShutdown runs every enabled service until ctx ends, SIGINT or SIGTERM arrives,
// or one of them fails. A failure stops the others and is returned.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runUnits(ctx, logger, enabledUnits(cfg, logger, enabled))
}

func enabledUnits(cfg *ServiceOrchestrationConfig, logger *slog.Logger, enabled map[config.ServiceMode]bool) []serviceUnit {
	all := []serviceUnit{
		{mode: config.ServiceModeHTTP, run: func(ctx context.Context) error {
			return serveHTTP(ctx, &HTTPServerConfig{
				Config:   cfg.Config,
				Services: cfg.Services,
				DB:       cfg.DB,
				Redis:    cfg.RedisClient,
				Logger:   logger,
			})
		}},
		{mode: config.ServiceModeOrchestrator, run: func(ctx context.Context) error {
			return RunOrchestrator(ctx, OrchestratorRunnerConfig{
				Orchestrator: cfg.Services.Orchestrator,
				Interval:     cfg.Config.Orchestrator.TickInterval,
				Logger:       logger,
				Metrics:      cfg.Services.Observability.MetricsSink,
			})
		}},
		{mode: config.ServiceModeReaper, run: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				DB:      cfg.DB,
				Logger:  logger,
				Config:  cfg.Config.Reaper,
				Metrics: cfg.Services.Observability.MetricsSink,
			})
		}},
	}

	units := make([]serviceUnit, 0, len(all))
	for _, u := range all {
		if enabled[u.mode] {
			units = append(units, u)
		}
	}
	return units
}

// runUnits blocks until every unit has returned. Units stopping because ctx ended are not failures.
func runUnits(ctx context.Context, logger *slog.Logger, units []serviceUnit) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", u.mode)
			err := u.run(gctx)
			if err != nil && !(gctx.Err() != nil && errors.Is(err, context.Canceled)) {
				logger.ErrorContext(gctx, "service failed", "service", u.mode, "error", err)
				return fmt.Errorf("%s: %w", u.mode, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", u.mode)
			return nil
		})
	}

	return g.Wait()
}
