package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	obserrors "github.com/target/refresh-orchestrator/internal/observability/errors"
	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.RunRetentionRepository // Required: run retention repository
	Config  config.ReaperConfig         // Required: reaper configuration
	Clock   core.TimeProvider           // Optional: defaults to the system clock
	Logger  *slog.Logger                // Optional: structured logger
	Metrics statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
}

// ReaperService deletes terminal refresh job runs once they are older than their retention age.
// Pending runs are never touched; the orchestrator's timeout sweep owns them.
type ReaperService struct {
	repo    core.RunRetentionRepository
	config  config.ReaperConfig
	clock   core.TimeProvider
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RunRetentionRepository is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		clock:   clock,
		logger:  logger.With("component", "run_reaper"),
		metrics: opts.Metrics,
	}, nil
}

// Run cleans up once after a random start delay of up to a tenth of the interval, then on every interval.
// Cancellation ends the loop with nil; a deadline is returned.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting run reaper",
		"interval", s.config.Interval,
		"success_max_age", s.config.SuccessMaxAge,
		"error_max_age", s.config.ErrorMaxAge,
		"timed_out_max_age", s.config.TimedOutMaxAge,
	)

	var ticker *time.Ticker
	var ticks <-chan time.Time
	timer := time.NewTimer(s.startDelay())
	defer func() {
		timer.Stop()
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "run reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
			ticker = time.NewTicker(s.config.Interval)
			ticks = ticker.C
			s.cleanup(ctx)
		case <-ticks:
			s.cleanup(ctx)
		}
	}
}

// startDelay spreads replicas that start together across the first interval.
func (s *ReaperService) startDelay() time.Duration {
	spread := int64(s.config.Interval / 10)
	if spread <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(spread)) //nolint:gosec // scheduling jitter, not a secret
}

func (s *ReaperService) cleanup(ctx context.Context) {
	err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case canceledOnly(err):
		s.logger.DebugContext(ctx, "run cleanup interrupted", "error", err)
	default:
		s.logger.ErrorContext(ctx, "run cleanup failed", "error", err)
	}
}

// retentionStep deletes runs of one terminal status.
type retentionStep struct {
	operation string
	status    model.RunStatus
	maxAge    time.Duration
}

func (s *ReaperService) steps() []retentionStep {
	return []retentionStep{
		{operation: "delete_success", status: model.RunStatusSuccess, maxAge: s.config.SuccessMaxAge},
		{operation: "delete_error", status: model.RunStatusError, maxAge: s.config.ErrorMaxAge},
		{
			operation: "delete_timed_out",
			status:    model.RunStatusNotificationTimedOut,
			maxAge:    s.config.TimedOutMaxAge,
		},
	}
}

// RunOnce performs every retention step once. A failing step does not stop the others.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		outcomes           = make([]stepOutcome, 0, 3)
	)

	for _, step := range s.steps() {
		count, err := s.deleteRuns(ctx, step)
		outcomes = append(outcomes, stepOutcome{
			operation: step.operation,
			count:     count,
			err:       stepErr(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.operation, err))
			allContextCanceled = allContextCanceled && canceledOnly(err)
		}
	}

	s.emitCleanupMetrics(outcomes, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

// deleteRuns loops until no more rows are affected to handle large tables in batches.
func (s *ReaperService) deleteRuns(ctx context.Context, step retentionStep) (int64, error) {
	before := s.clock.Now().Add(-step.maxAge)
	var totalCount int64
	for {
		count, err := s.repo.DeleteTerminalRuns(ctx, core.DeleteTerminalRunsParams{
			Status:    step.status,
			Before:    before,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 {
		s.logger.InfoContext(ctx, "deleted old refresh job runs",
			"status", step.status,
			"count", totalCount,
			"max_age", step.maxAge,
		)
	}
	return totalCount, nil
}

type stepOutcome struct {
	operation string
	count     int64
	err       error
}

func (s *ReaperService) emitCleanupMetrics(outcomes []stepOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, o := range outcomes {
		total += o.count
		if firstErr == nil {
			firstErr = o.err
		}
	}

	tags := map[string]string{"result": metrics.ResultOf(int(min(total, 1)), firstErr)}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, o := range outcomes {
		opTags := map[string]string{
			"operation": o.operation,
			"result":    metrics.ResultOf(int(min(o.count, 1)), o.err),
		}
		if o.err != nil {
			if class := obserrors.Classify(o.err); class != "" {
				opTags["error_class"] = class
			}
		}
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if o.err == nil && o.count > 0 {
			s.metrics.Count("reaper.runs_deleted", o.count, metrics.CloneTags(opTags))
		}
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// canceledOnly reports whether err stems from ctx ending rather than the store failing.
func canceledOnly(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// stepErr drops cancellation so an interrupted cycle is not reported as a failed step.
func stepErr(err error) error {
	if canceledOnly(err) {
		return nil
	}
	return err
}
