package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// QueryDispatcherOptions groups dependencies for QueryDispatcher.
type QueryDispatcherOptions struct {
	Executions core.ExecutionRepository // Required: execution lookup by signature
	Queries    core.QueryService        // Required: query execution service client
	Logger     *slog.Logger             // Optional: structured logger
	Metrics    statsd.Sink              // Optional: metrics sink
}

// DispatchResult reports the execution a dispatch ended up tracking.
type DispatchResult struct {
	ExecutionID string `json:"execution_id"`
	Reused      bool   `json:"reused"`
}

// QueryDispatcher submits parameterized queries and finds them again by signature.
type QueryDispatcher struct {
	executions core.ExecutionRepository
	queries    core.QueryService
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewQueryDispatcher constructs a QueryDispatcher.
func NewQueryDispatcher(opts QueryDispatcherOptions) (*QueryDispatcher, error) {
	if opts.Executions == nil {
		return nil, errors.New("ExecutionRepository is required")
	}
	if opts.Queries == nil {
		return nil, errors.New("QueryService is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryDispatcher{
		executions: opts.Executions,
		queries:    opts.Queries,
		logger:     logger.With("component", "query_dispatcher"),
		metrics:    opts.Metrics,
	}, nil
}

// Dispatch submits the query unless the newest execution with the same signature is still running,
// in which case that execution is returned with Reused set.
func (d *QueryDispatcher) Dispatch(ctx context.Context, sig model.Signature) (DispatchResult, error) {
	if latest := d.runningExecution(ctx, sig); latest != "" {
		metrics.EmitDispatch(d.metrics, true, nil)
		return DispatchResult{ExecutionID: latest, Reused: true}, nil
	}

	id, err := d.queries.Dispatch(ctx, sig)
	metrics.EmitDispatch(d.metrics, false, err)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("dispatch query for node %s: %w", sig.ParentNodeID, err)
	}
	return DispatchResult{ExecutionID: id}, nil
}

// runningExecution returns the id of a running execution for sig, or "" when a new dispatch is needed.
// Lookup failures fall back to dispatching.
func (d *QueryDispatcher) runningExecution(ctx context.Context, sig model.Signature) string {
	latest, err := d.executions.FindLatest(ctx, sig)
	if err != nil {
		d.logger.WarnContext(ctx, "execution lookup failed, dispatching anyway",
			"node_id", sig.ParentNodeID,
			"error", err,
		)
		return ""
	}
	if latest == nil {
		return ""
	}

	status, err := d.queries.Status(ctx, latest.ID)
	if err != nil {
		d.logger.WarnContext(ctx, "execution status check failed, dispatching anyway",
			"node_id", sig.ParentNodeID,
			"execution_id", latest.ID,
			"error", err,
		)
		return ""
	}
	if status == model.ExecutionRunning {
		d.logger.DebugContext(ctx, "reusing running execution",
			"node_id", sig.ParentNodeID,
			"execution_id", latest.ID,
		)
		return latest.ID
	}
	return ""
}

// FindLatest returns the newest non-deleted execution whose signature matches exactly, or nil.
func (d *QueryDispatcher) FindLatest(ctx context.Context, sig model.Signature) (*model.QueryExecution, error) {
	exec, err := d.executions.FindLatest(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("find latest execution for node %s: %w", sig.ParentNodeID, err)
	}
	return exec, nil
}

// Status reports the execution's state from the query execution service.
func (d *QueryDispatcher) Status(ctx context.Context, executionID string) (model.ExecutionStatus, error) {
	status, err := d.queries.Status(ctx, executionID)
	if err != nil {
		return "", fmt.Errorf("query execution %s status: %w", executionID, err)
	}
	return status, nil
}
