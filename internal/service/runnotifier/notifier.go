// Package runnotifier fans run notifications out to every configured delivery sink.
package runnotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/observability/notify"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the run notifier.
type Options struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
	Sinks   []SinkRegistration
}

// Service delivers run notifications. Delivery failures are logged and never returned.
type Service struct {
	logger  *slog.Logger
	metrics statsd.Sink
	sinks   []SinkRegistration
}

var _ core.RunNotifier = (*Service)(nil)

// NewService constructs a run notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "run_notifier"),
		metrics: opts.Metrics,
		sinks:   sinks,
	}
}

// NotifyRun hands n to every sink concurrently and waits for them to return.
func (s *Service) NotifyRun(ctx context.Context, n model.RunNotification) {
	if len(s.sinks) == 0 {
		return
	}
	if n.Targets.Empty() && n.Outcome != model.RunOutcomeTimedOut {
		s.logger.DebugContext(ctx, "run has no notification targets",
			"run_id", n.RunID,
			"refresh_job_id", n.RefreshJobID,
		)
		return
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := entry.Sink.SendRunNotification(ctx, n)
			s.record(entry.Name, n.Outcome, err)
			if err != nil {
				s.logger.ErrorContext(ctx, "run notification delivery failed",
					"sink", entry.Name,
					"run_id", n.RunID,
					"refresh_job_id", n.RefreshJobID,
					"outcome", n.Outcome,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

func (s *Service) record(sink string, outcome model.RunOutcome, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.Count("refresh.notification", 1, map[string]string{
		"sink":    sink,
		"outcome": string(outcome),
		"result":  result,
	})
}
