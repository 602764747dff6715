// Package scheduler runs orchestration passes on each UTC minute boundary for deployments without an
// external minute-tick scheduler.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
	"github.com/target/refresh-orchestrator/internal/service"
)

// defaultTickOffset places each pass just after the minute starts, inside the due window.
const defaultTickOffset = 2 * time.Second

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Orchestrator service.PassRunner // Required
	Interval     time.Duration      // Optional: time between passes, rounded up to whole minutes (defaults to 1m)
	Offset       time.Duration      // Optional: delay after the boundary (defaults to 2s)
	Logger       *slog.Logger
	Metrics      statsd.Sink

	// Optional hooks for tests.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Runner ticks the orchestrator on minute boundaries.
type Runner struct {
	orchestrator service.PassRunner
	interval     time.Duration
	offset       time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
	now          func() time.Time
	after        func(time.Duration) <-chan time.Time
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	interval := opts.Interval.Truncate(time.Minute)
	if interval < opts.Interval || interval <= 0 {
		interval += time.Minute
	}
	offset := opts.Offset
	if offset <= 0 || offset >= time.Minute {
		offset = defaultTickOffset
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	after := opts.After
	if after == nil {
		after = time.After
	}

	return &Runner{
		orchestrator: opts.Orchestrator,
		interval:     interval,
		offset:       offset,
		logger:       logger.With("component", "orchestration_ticker"),
		metrics:      opts.Metrics,
		now:          now,
		after:        after,
	}, nil
}

// Run starts the tick loop and runs until the context is cancelled.
// A failed pass is logged and the loop continues with the next boundary.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting orchestration ticker", "interval", r.interval, "offset", r.offset)

	for {
		wait := r.untilNextTick(r.now())
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "orchestration ticker stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-r.after(wait):
			r.tick(ctx)
		}
	}
}

// untilNextTick returns the delay to the next interval boundary plus offset, in UTC.
func (r *Runner) untilNextTick(now time.Time) time.Duration {
	now = now.UTC()
	next := now.Truncate(r.interval).Add(r.offset)
	if !next.After(now) {
		next = now.Truncate(r.interval).Add(r.interval).Add(r.offset)
	}
	return next.Sub(now)
}

func (r *Runner) tick(ctx context.Context) {
	start := r.now()
	res, err := r.orchestrator.RunPass(ctx, service.TriggerTick)
	r.emitTickMetrics(res, r.now().Sub(start), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "orchestration tick failed", "error", err)
	}
}

func (r *Runner) emitTickMetrics(res *service.PassResult, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	initiated := 0
	if res != nil {
		initiated = res.Initiated
	}
	tags := map[string]string{"result": metrics.ResultOf(initiated, err)}

	r.metrics.Count("scheduler.tick", 1, tags)
	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(r.now().Unix()), nil)
	}
}
