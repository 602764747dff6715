package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/domain/refresh"
	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// FinishOutcome is what a finish attempt did to a run.
type FinishOutcome string

const (
	// FinishOutcomeFinished means the run moved to success.
	FinishOutcomeFinished FinishOutcome = "finished"
	// FinishOutcomeStillRunning means at least one query is running; the run stays pending.
	FinishOutcomeStillRunning FinishOutcome = "still_running"
	// FinishOutcomeNotPending means the run was already terminal or another pass moved it first.
	FinishOutcomeNotPending FinishOutcome = "not_pending"
	// FinishOutcomeExpired means the run is older than the timeout and belongs to the timeout sweep.
	FinishOutcomeExpired FinishOutcome = "expired"
)

var errStillRunning = errors.New("query still running")

// FinisherDeps are the collaborators a RefreshFinisher needs.
type FinisherDeps struct {
	Jobs       core.RefreshJobRepository
	Orgs       core.OrganizationRepository
	Runs       core.RunRepository
	Graph      core.GraphService
	Params     *ParameterService
	Dispatcher *QueryDispatcher
	Notifier   core.RunNotifier
	Clock      core.TimeProvider
}

// RefreshFinisherOptions groups dependencies for RefreshFinisher.
type RefreshFinisherOptions struct {
	Deps        FinisherDeps  // Required: all but Notifier and Clock
	RunTimeout  time.Duration // Optional: runs at least this old are left to the sweep (defaults to 3600s)
	Concurrency int           // Optional: parallel status checks per run (defaults to 8)
	Logger      *slog.Logger  // Optional: structured logger
	Metrics     statsd.Sink   // Optional: metrics sink
}

// FinishResult reports what happened to the run.
type FinishResult struct {
	Run     *model.RefreshJobRun `json:"run"`
	Outcome FinishOutcome        `json:"outcome"`
	Checked int                  `json:"checked"`
}

// RefreshFinisher moves pending runs to success once none of their queries is still running.
type RefreshFinisher struct {
	deps        FinisherDeps
	planner     queryPlanner
	runTimeout  time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     statsd.Sink
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewRefreshFinisher constructs a RefreshFinisher.
func NewRefreshFinisher(opts RefreshFinisherOptions) (*RefreshFinisher, error) {
	d := opts.Deps
	switch {
	case d.Jobs == nil:
		return nil, errors.New("RefreshJobRepository is required")
	case d.Orgs == nil:
		return nil, errors.New("OrganizationRepository is required")
	case d.Runs == nil:
		return nil, errors.New("RunRepository is required")
	case d.Graph == nil:
		return nil, errors.New("GraphService is required")
	case d.Params == nil:
		return nil, errors.New("ParameterService is required")
	case d.Dispatcher == nil:
		return nil, errors.New("QueryDispatcher is required")
	}
	if d.Clock == nil {
		d.Clock = systemClock{}
	}

	timeout := opts.RunTimeout
	if timeout <= 0 {
		timeout = model.DefaultRunTimeout
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDispatchConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshFinisher{
		deps:        d,
		planner:     queryPlanner{graph: d.Graph, params: d.Params},
		runTimeout:  timeout,
		concurrency: concurrency,
		logger:      logger.With("component", "refresh_finisher"),
		metrics:     opts.Metrics,
	}, nil
}

// FinishByID loads the run and attempts to finish it.
func (s *RefreshFinisher) FinishByID(ctx context.Context, runID string) (*FinishResult, error) {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.Finish(ctx, run)
}

// Finish re-derives the job's queries from the current graph and moves the run to success when every
// execution found for them is done. Nodes without a matching execution have nothing to wait for.
func (s *RefreshFinisher) Finish(ctx context.Context, run *model.RefreshJobRun) (*FinishResult, error) {
	if run.Status != model.RunStatusPendingNotification {
		return &FinishResult{Run: run, Outcome: FinishOutcomeNotPending}, nil
	}
	if run.Age(s.deps.Clock.Now()) > s.runTimeout {
		return &FinishResult{Run: run, Outcome: FinishOutcomeExpired}, nil
	}

	log := s.logger.With("run_id", run.ID, "refresh_job_id", run.RefreshJobID)

	job, err := s.deps.Jobs.GetActive(ctx, run.RefreshJobID)
	if err != nil {
		return nil, fmt.Errorf("load refresh job for run %s: %w", run.ID, err)
	}
	planned, err := s.planner.plan(ctx, job.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("plan queries for run %s: %w", run.ID, err)
	}

	if err := s.awaitAll(ctx, planned); err != nil {
		if errors.Is(err, errStillRunning) {
			log.DebugContext(ctx, "refresh run still waiting on queries")
			return &FinishResult{Run: run, Outcome: FinishOutcomeStillRunning, Checked: len(planned)}, nil
		}
		return nil, fmt.Errorf("check queries for run %s: %w", run.ID, err)
	}

	now := s.deps.Clock.Now()
	won, err := s.deps.Runs.Transition(ctx, model.RunTransition{
		RunID: run.ID,
		From:  model.RunStatusPendingNotification,
		To:    model.RunStatusSuccess,
		At:    now,
	})
	if err != nil {
		metrics.EmitRunTransition(s.metrics, metrics.RunTransitionMetric{
			Status: string(model.RunStatusSuccess), Source: "finisher", Err: err,
		})
		return nil, fmt.Errorf("mark run %s success: %w", run.ID, err)
	}
	if !won {
		log.InfoContext(ctx, "refresh run already moved by another pass")
		return &FinishResult{Run: run, Outcome: FinishOutcomeNotPending, Checked: len(planned)}, nil
	}
	metrics.EmitRunTransition(s.metrics, metrics.RunTransitionMetric{
		Status: string(model.RunStatusSuccess), Source: "finisher",
	})

	finished := *run
	finished.Status = model.RunStatusSuccess
	finished.UpdatedAt = now
	log.InfoContext(ctx, "refresh run finished", "checked", len(planned))

	s.notify(ctx, job, &finished)
	return &FinishResult{Run: &finished, Outcome: FinishOutcomeFinished, Checked: len(planned)}, nil
}

// awaitAll returns errStillRunning as soon as one execution reports running.
func (s *RefreshFinisher) awaitAll(ctx context.Context, planned []refresh.PlannedQuery) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pq := range planned {
		g.Go(func() error {
			exec, err := s.deps.Dispatcher.FindLatest(gctx, pq.Signature)
			if err != nil {
				return err
			}
			if exec == nil {
				return nil
			}
			status, err := s.deps.Dispatcher.Status(gctx, exec.ID)
			if err != nil {
				return err
			}
			if !status.Done() {
				return errStillRunning
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *RefreshFinisher) notify(ctx context.Context, job *model.RefreshJob, run *model.RefreshJobRun) {
	if s.deps.Notifier == nil || !job.HasNotificationTargets() {
		return
	}
	orgName := ""
	if org, err := s.deps.Orgs.GetByID(ctx, job.OrganizationID); err != nil {
		s.logger.WarnContext(ctx, "organization lookup failed, notifying without name",
			"organization_id", job.OrganizationID,
			"error", err,
		)
	} else {
		orgName = org.Name
	}

	s.deps.Notifier.NotifyRun(ctx, model.RunNotification{
		RunID:            run.ID,
		RefreshJobID:     job.ID,
		OrganizationID:   job.OrganizationID,
		OrganizationName: orgName,
		Outcome:          model.RunOutcomeRefreshed,
		Targets:          job.Targets(),
		OccurredAt:       run.UpdatedAt,
	})
}
