// Package reaper provides adapters for running the refresh run reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
	"github.com/target/refresh-orchestrator/internal/service"
)

// Runner owns the retention loop for refresh job runs.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner. Repo overrides the SQL store built from DB.
type RunnerOptions struct {
	DB      *sql.DB
	Repo    core.RunRetentionRepository
	Config  config.ReaperConfig
	Clock   core.TimeProvider
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner builds the retention service over the run store.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	repo := opts.Repo
	switch {
	case repo != nil:
	case opts.DB != nil:
		repo = data.NewRunRepo(opts.DB)
	default:
		return nil, errors.New("database connection is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := opts.Config
	retention.Sanitize()

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  retention,
		Clock:   opts.Clock,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build run reaper: %w", err)
	}
	return &Runner{reaper: svc, logger: logger}, nil
}

// Run deletes expired terminal runs on every interval until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "run retention started")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single cleanup cycle.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.reaper.RunOnce(ctx)
}
