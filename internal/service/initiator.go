package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/domain/refresh"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

const defaultDispatchConcurrency = 8

// InitiatorDeps are the collaborators a RefreshInitiator needs.
type InitiatorDeps struct {
	Jobs       core.RefreshJobRepository
	Runs       core.RunRepository
	Graph      core.GraphService
	Params     *ParameterService
	Dispatcher *QueryDispatcher
}

// RefreshInitiatorOptions groups dependencies for RefreshInitiator.
type RefreshInitiatorOptions struct {
	Deps        InitiatorDeps // Required: every field
	Concurrency int           // Optional: parallel dispatches per run (defaults to 8)
	Logger      *slog.Logger  // Optional: structured logger
	Metrics     statsd.Sink   // Optional: metrics sink
}

// InitiateRequest identifies the job to start. FireKey is the scheduled fire minute, empty for manual runs.
type InitiateRequest struct {
	RefreshJobID string
	FireKey      string
}

// InitiateResult describes the run an initiation created and how its dispatches went.
type InitiateResult struct {
	Run        *model.RefreshJobRun `json:"run"`
	Planned    int                  `json:"planned"`
	Dispatched int                  `json:"dispatched"`
	Reused     int                  `json:"reused"`
	Failed     int                  `json:"failed"`
}

// RefreshInitiator starts refresh job runs: it dispatches every qualifying node's query and records the run.
type RefreshInitiator struct {
	deps        InitiatorDeps
	planner     queryPlanner
	concurrency int
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewRefreshInitiator constructs a RefreshInitiator.
func NewRefreshInitiator(opts RefreshInitiatorOptions) (*RefreshInitiator, error) {
	d := opts.Deps
	switch {
	case d.Jobs == nil:
		return nil, errors.New("RefreshJobRepository is required")
	case d.Runs == nil:
		return nil, errors.New("RunRepository is required")
	case d.Graph == nil:
		return nil, errors.New("GraphService is required")
	case d.Params == nil:
		return nil, errors.New("ParameterService is required")
	case d.Dispatcher == nil:
		return nil, errors.New("QueryDispatcher is required")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDispatchConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshInitiator{
		deps:        d,
		planner:     queryPlanner{graph: d.Graph, params: d.Params},
		concurrency: concurrency,
		logger:      logger.With("component", "refresh_initiator"),
		metrics:     opts.Metrics,
	}, nil
}

// Initiate runs one initiation of the job.
//
// A missing or soft-deleted job returns NotFound without a run. When the graph or parameters cannot be
// loaded an error run is recorded and returned together with the cause. Individual dispatch failures are
// logged and never fail the run. A duplicate FireKey returns a Conflict error.
func (s *RefreshInitiator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	job, err := s.deps.Jobs.GetActive(ctx, req.RefreshJobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		// The job may still exist; leave an error run behind when the store accepts it.
		s.logger.ErrorContext(ctx, "refresh job lookup failed", "refresh_job_id", req.RefreshJobID, "error", err)
		run, createErr := s.createRun(ctx, &model.RefreshJob{ID: req.RefreshJobID}, req.FireKey, err)
		if createErr != nil {
			return nil, errors.Join(err, createErr)
		}
		return &InitiateResult{Run: run}, fmt.Errorf("initiate refresh job %s: %w", req.RefreshJobID, err)
	}

	log := s.logger.With("refresh_job_id", job.ID, "organization_id", job.OrganizationID)
	if req.FireKey != "" {
		log = log.With("fire_key", req.FireKey)
	}

	planned, err := s.planner.plan(ctx, job.OrganizationID)
	if err != nil {
		log.ErrorContext(ctx, "refresh job initiation failed", "error", err)
		run, createErr := s.createRun(ctx, job, req.FireKey, err)
		if createErr != nil {
			return nil, errors.Join(err, createErr)
		}
		return &InitiateResult{Run: run}, fmt.Errorf("initiate refresh job %s: %w", job.ID, err)
	}

	result := s.dispatchAll(ctx, log, planned)

	run, err := s.createRun(ctx, job, req.FireKey, nil)
	if err != nil {
		return nil, err
	}
	result.Run = run

	log.InfoContext(ctx, "refresh job initiated",
		"run_id", run.ID,
		"status", run.Status,
		"planned", result.Planned,
		"dispatched", result.Dispatched,
		"reused", result.Reused,
		"failed", result.Failed,
	)
	return result, nil
}

// dispatchAll submits every planned query with bounded concurrency. Failures are counted and logged only.
func (s *RefreshInitiator) dispatchAll(
	ctx context.Context,
	log *slog.Logger,
	planned []refresh.PlannedQuery,
) *InitiateResult {
	var dispatched, reused, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, pq := range planned {
		g.Go(func() error {
			res, err := s.deps.Dispatcher.Dispatch(ctx, pq.Signature)
			if err != nil {
				failed.Add(1)
				log.WarnContext(ctx, "query dispatch failed",
					"node_id", pq.Node.ID,
					"database_connection_id", pq.Node.DatabaseConnectionID,
					"error", err,
				)
				return nil
			}
			if res.Reused {
				reused.Add(1)
			} else {
				dispatched.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return &InitiateResult{
		Planned:    len(planned),
		Dispatched: int(dispatched.Load()),
		Reused:     int(reused.Load()),
		Failed:     int(failed.Load()),
	}
}

func (s *RefreshInitiator) createRun(
	ctx context.Context,
	job *model.RefreshJob,
	fireKey string,
	initErr error,
) (*model.RefreshJobRun, error) {
	status := model.InitialRunStatus(job, initErr)
	run, err := s.deps.Runs.Create(ctx, model.CreateRunRequest{
		RefreshJobID: job.ID,
		Status:       status,
		FireKey:      fireKey,
	})
	metrics.EmitRunTransition(s.metrics, metrics.RunTransitionMetric{
		Status: string(status),
		Source: "initiator",
		Err:    err,
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("record run for refresh job %s: %w", job.ID, err)
	}
	return run, nil
}
