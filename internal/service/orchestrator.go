package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/domain/refresh"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
	"github.com/target/refresh-orchestrator/internal/observability/metrics"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

// maxSweepBatches bounds the timeout sweep of a single pass.
const maxSweepBatches = 100

// Pass triggers, used as log attributes and metric tags.
const (
	TriggerHTTP = "http"
	TriggerTick = "tick"
	TriggerCLI  = "cli"
)

// Initiator starts a refresh job run.
type Initiator interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}

// PassRunner runs one orchestration pass.
type PassRunner interface {
	RunPass(ctx context.Context, trigger string) (*PassResult, error)
}

// Finisher attempts to complete a pending run.
type Finisher interface {
	Finish(ctx context.Context, run *model.RefreshJobRun) (*FinishResult, error)
}

// OrchestratorDeps are the collaborators a RefreshOrchestrator needs.
type OrchestratorDeps struct {
	Jobs      core.RefreshJobRepository
	Orgs      core.OrganizationRepository
	Runs      core.RunRepository
	Initiator Initiator
	Finisher  Finisher
	Notifier  core.RunNotifier // Optional: timed-out runs are only logged without it
	Locker    core.FireLocker  // Optional: falls back to the fire key unique constraint
	Clock     core.TimeProvider
}

// RefreshOrchestratorOptions groups dependencies for RefreshOrchestrator.
type RefreshOrchestratorOptions struct {
	Deps    OrchestratorDeps          // Required: Jobs, Orgs, Runs, Initiator, Finisher
	Config  config.OrchestratorConfig // Required: orchestration settings (sanitized)
	Logger  *slog.Logger              // Optional: structured logger
	Metrics statsd.Sink               // Optional: metrics sink
}

// PassResult summarizes one orchestration pass.
type PassResult struct {
	Trigger          string        `json:"trigger"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	TimedOut         int           `json:"timed_out"`
	Reconciled       int           `json:"reconciled"`
	Finished         int           `json:"finished"`
	StillPending     int           `json:"still_pending"`
	Due              int           `json:"due"`
	Initiated        int           `json:"initiated"`
	Skipped          int           `json:"skipped"`
	InvalidSchedules int           `json:"invalid_schedules"`
	Errors           int           `json:"errors"`
}

func (r *PassResult) phases() map[string]int {
	return map[string]int{
		"timed_out":         r.TimedOut,
		"finished":          r.Finished,
		"still_pending":     r.StillPending,
		"initiated":         r.Initiated,
		"skipped":           r.Skipped,
		"invalid_schedules": r.InvalidSchedules,
		"errors":            r.Errors,
	}
}

// RefreshOrchestrator runs orchestration passes: timeout sweep, reconciliation and due-job detection.
type RefreshOrchestrator struct {
	deps    OrchestratorDeps
	cfg     config.OrchestratorConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRefreshOrchestrator constructs a RefreshOrchestrator.
func NewRefreshOrchestrator(opts RefreshOrchestratorOptions) (*RefreshOrchestrator, error) {
	d := opts.Deps
	switch {
	case d.Jobs == nil:
		return nil, errors.New("RefreshJobRepository is required")
	case d.Orgs == nil:
		return nil, errors.New("OrganizationRepository is required")
	case d.Runs == nil:
		return nil, errors.New("RunRepository is required")
	case d.Initiator == nil:
		return nil, errors.New("Initiator is required")
	case d.Finisher == nil:
		return nil, errors.New("Finisher is required")
	}
	if d.Clock == nil {
		d.Clock = systemClock{}
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "refresh_orchestrator")
	logger.Debug("RefreshOrchestrator initialized",
		"concurrency", cfg.Concurrency,
		"run_timeout", cfg.RunTimeout,
		"lock_ttl", cfg.LockTTL,
	)

	return &RefreshOrchestrator{
		deps:    d,
		cfg:     cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// RunPass performs one orchestration pass evaluated at the current instant.
// Every phase is attempted even when an earlier one fails; phase failures are joined into the returned error.
// Failures of single runs or jobs are logged and counted in PassResult.Errors only.
func (o *RefreshOrchestrator) RunPass(ctx context.Context, trigger string) (*PassResult, error) {
	if o.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.PassTimeout)
		defer cancel()
	}

	now := o.deps.Clock.Now().UTC()
	res := &PassResult{Trigger: trigger, StartedAt: now}
	start := time.Now()

	var errs []error
	if err := o.sweep(ctx, now, res); err != nil {
		errs = append(errs, fmt.Errorf("timeout sweep: %w", err))
	}
	if err := o.reconcile(ctx, now, res); err != nil {
		errs = append(errs, fmt.Errorf("reconciliation: %w", err))
	}
	if err := o.initiateDue(ctx, now, res); err != nil {
		errs = append(errs, fmt.Errorf("due detection: %w", err))
	}
	res.Duration = time.Since(start)
	err := errors.Join(errs...)

	metrics.EmitPass(o.metrics, metrics.PassMetric{
		Trigger:  trigger,
		Phases:   res.phases(),
		Duration: res.Duration,
		Err:      err,
	})

	attrs := []any{
		"trigger", trigger,
		"timed_out", res.TimedOut,
		"finished", res.Finished,
		"still_pending", res.StillPending,
		"due", res.Due,
		"initiated", res.Initiated,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"duration", res.Duration,
	}
	if err != nil {
		o.logger.ErrorContext(ctx, "orchestration pass completed with errors", append(attrs, "error", err)...)
	} else {
		o.logger.InfoContext(ctx, "orchestration pass completed", attrs...)
	}
	return res, err
}

// sweep times out pending runs older than the run timeout and announces each one.
func (o *RefreshOrchestrator) sweep(ctx context.Context, now time.Time, res *PassResult) error {
	cutoff := now.Add(-o.cfg.RunTimeout)
	var timedOut []*model.RefreshJobRun
	for range maxSweepBatches {
		batch, err := o.deps.Runs.TimeoutStale(ctx, core.TimeoutStaleParams{
			Cutoff:    cutoff,
			Now:       now,
			BatchSize: o.cfg.SweepBatchSize,
		})
		if err != nil {
			o.notifyTimedOut(ctx, timedOut)
			return err
		}
		timedOut = append(timedOut, batch...)
		if len(batch) < o.cfg.SweepBatchSize {
			break
		}
	}
	res.TimedOut = len(timedOut)
	for range timedOut {
		metrics.EmitRunTransition(o.metrics, metrics.RunTransitionMetric{
			Status: string(model.RunStatusNotificationTimedOut),
			Source: "sweep",
		})
	}
	o.notifyTimedOut(ctx, timedOut)
	return nil
}

func (o *RefreshOrchestrator) notifyTimedOut(ctx context.Context, runs []*model.RefreshJobRun) {
	for _, run := range runs {
		o.logger.WarnContext(ctx, "refresh run timed out",
			"run_id", run.ID,
			"refresh_job_id", run.RefreshJobID,
			"created_at", run.CreatedAt,
		)
	}
	if o.deps.Notifier == nil || len(runs) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, run := range runs {
		g.Go(func() error {
			o.announceTimeout(ctx, run)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *RefreshOrchestrator) announceTimeout(ctx context.Context, run *model.RefreshJobRun) {
	job, err := o.deps.Jobs.GetActive(ctx, run.RefreshJobID)
	if err != nil {
		o.logger.WarnContext(ctx, "skipping timeout notification",
			"run_id", run.ID,
			"refresh_job_id", run.RefreshJobID,
			"error", err,
		)
		return
	}
	orgName := ""
	if org, orgErr := o.deps.Orgs.GetByID(ctx, job.OrganizationID); orgErr == nil {
		orgName = org.Name
	}
	o.deps.Notifier.NotifyRun(ctx, model.RunNotification{
		RunID:            run.ID,
		RefreshJobID:     job.ID,
		OrganizationID:   job.OrganizationID,
		OrganizationName: orgName,
		Outcome:          model.RunOutcomeTimedOut,
		Targets:          job.Targets(),
		OccurredAt:       run.UpdatedAt,
	})
}

// reconcile hands every pending run younger than the timeout to the Finisher.
func (o *RefreshOrchestrator) reconcile(ctx context.Context, now time.Time, res *PassResult) error {
	pending, err := o.deps.Runs.ListPending(ctx, now.Add(-o.cfg.RunTimeout), o.cfg.ReconcileLimit)
	if err != nil {
		return err
	}
	res.Reconciled = len(pending)

	var finished, still, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, run := range pending {
		g.Go(func() error {
			out, err := o.deps.Finisher.Finish(ctx, run)
			if err != nil {
				failed.Add(1)
				o.logger.ErrorContext(ctx, "refresh run reconciliation failed",
					"run_id", run.ID,
					"refresh_job_id", run.RefreshJobID,
					"error", err,
				)
				return nil
			}
			switch out.Outcome {
			case FinishOutcomeFinished:
				finished.Add(1)
			case FinishOutcomeStillRunning:
				still.Add(1)
			case FinishOutcomeNotPending, FinishOutcomeExpired:
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Finished = int(finished.Load())
	res.StillPending = int(still.Load())
	res.Errors += int(failed.Load())
	return nil
}

type dueJob struct {
	job   *model.RefreshJob
	check refresh.DueCheck
}

// initiateDue initiates every active job whose schedule fires inside the current UTC minute.
func (o *RefreshOrchestrator) initiateDue(ctx context.Context, now time.Time, res *PassResult) error {
	jobs, err := o.deps.Jobs.ListActive(ctx)
	if err != nil {
		return err
	}

	var due []dueJob
	for _, job := range jobs {
		sched, parseErr := refresh.ParseSchedule(job.Schedule)
		if parseErr != nil {
			res.InvalidSchedules++
			o.logger.WarnContext(ctx, "skipping refresh job with invalid schedule",
				"refresh_job_id", job.ID,
				"schedule", job.Schedule,
				"error", parseErr,
			)
			continue
		}
		if check := sched.CheckDue(now); check.Due {
			due = append(due, dueJob{job: job, check: check})
		}
	}
	res.Due = len(due)

	var initiated, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, d := range due {
		g.Go(func() error {
			fireKey := d.check.FireKey()
			if !o.acquire(ctx, d.job.ID, fireKey) {
				skipped.Add(1)
				return nil
			}
			_, err := o.deps.Initiator.Initiate(ctx, InitiateRequest{RefreshJobID: d.job.ID, FireKey: fireKey})
			switch {
			case err == nil:
				initiated.Add(1)
			case apperrors.IsConflict(err), apperrors.IsNotFound(err):
				skipped.Add(1)
				o.logger.InfoContext(ctx, "refresh job initiation skipped",
					"refresh_job_id", d.job.ID,
					"fire_key", fireKey,
					"reason", err,
				)
			default:
				failed.Add(1)
				o.logger.ErrorContext(ctx, "refresh job initiation failed",
					"refresh_job_id", d.job.ID,
					"fire_key", fireKey,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Initiated = int(initiated.Load())
	res.Skipped += int(skipped.Load())
	res.Errors += int(failed.Load())
	return nil
}

// acquire reports whether this pass owns the fire instant. Locker outages do not block initiation.
func (o *RefreshOrchestrator) acquire(ctx context.Context, jobID, fireKey string) bool {
	if o.deps.Locker == nil {
		return true
	}
	ok, err := o.deps.Locker.Acquire(ctx, jobID+":"+fireKey, o.cfg.LockTTL)
	if err != nil {
		o.logger.WarnContext(ctx, "fire lock unavailable, relying on run uniqueness",
			"refresh_job_id", jobID,
			"fire_key", fireKey,
			"error", err,
		)
		return true
	}
	if !ok {
		o.logger.DebugContext(ctx, "fire instant already claimed", "refresh_job_id", jobID, "fire_key", fireKey)
	}
	return ok
}
