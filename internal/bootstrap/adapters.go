package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/adapters/reaper"
	schedrunner "github.com/target/refresh-orchestrator/internal/adapters/scheduler"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
	"github.com/target/refresh-orchestrator/internal/service"
)

// OrchestratorRunnerConfig contains configuration for the self-ticking orchestrator.
type OrchestratorRunnerConfig struct {
	Orchestrator *service.RefreshOrchestrator
	Interval     time.Duration
	Logger       *slog.Logger
	Metrics      statsd.Sink
}

// RunOrchestrator runs orchestration passes on every interval boundary until ctx is canceled.
func RunOrchestrator(ctx context.Context, cfg OrchestratorRunnerConfig) error {
	if cfg.Orchestrator == nil {
		return errors.New("orchestrator is required")
	}
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		Orchestrator: cfg.Orchestrator,
		Interval:     cfg.Interval,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
