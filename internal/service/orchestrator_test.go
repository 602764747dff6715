package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/mocks"
)

func TestRefreshOrchestrator_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:00.2Z"))
	f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

	// Minute M: the job is due, the query is dispatched and the run waits.
	res, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Initiated)
	assert.Equal(t, 0, res.Finished)

	runs := f.store.Runs()
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, model.RunStatusPendingNotification, run.Status)
	require.NotNil(t, run.FireKey)
	assert.Equal(t, "2025-06-02T10:15Z", *run.FireKey)

	dispatched := f.queries.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, model.Signature{Statement: "SELECT 1", DatabaseConnectionID: connID, ParentNodeID: nodeID}, dispatched[0])

	// Minute M+1: the execution finished, so the run from M succeeds.
	f.queries.Complete()
	f.clock.Advance(time.Minute)
	res, err = f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reconciled)
	assert.Equal(t, 1, res.Finished)

	finished := f.store.Run(run.ID)
	require.NotNil(t, finished)
	assert.Equal(t, model.RunStatusSuccess, finished.Status)
	assert.Equal(t, f.clock.Now(), finished.UpdatedAt)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, run.ID, sent[0].RunID)
	assert.Equal(t, model.RunOutcomeRefreshed, sent[0].Outcome)
	assert.Equal(t, "acme", sent[0].OrganizationName)
	assert.Equal(t, []string{"https://hooks.slack.com/services/T/B/X"}, sent[0].Targets.SlackWebhooks)
}

func TestRefreshOrchestrator_TimeoutSweep(t *testing.T) {
	ctx := context.Background()
	created := at(t, "2025-06-02T10:00:30Z")
	f := newRefreshFixture(t, created)
	f.seedJob("0 0 1 1 *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

	f.store.PutRun(model.RefreshJobRun{
		ID:           "run-1",
		RefreshJobID: jobID,
		Status:       model.RunStatusPendingNotification,
		CreatedAt:    created,
		UpdatedAt:    created,
	})
	// A query is still running so a Finisher call would leave the run pending.
	f.store.RecordExecution(model.Signature{Statement: "SELECT 1", DatabaseConnectionID: connID, ParentNodeID: nodeID})

	f.clock.Set(created.Add(3601 * time.Second))
	graphCalls := f.graph.Calls()

	res, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TimedOut)
	assert.Equal(t, 0, res.Reconciled)
	assert.Equal(t, graphCalls, f.graph.Calls(), "finisher must not run on a timed-out run")

	run := f.store.Run("run-1")
	assert.Equal(t, model.RunStatusNotificationTimedOut, run.Status)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, model.RunOutcomeTimedOut, sent[0].Outcome)

	// Terminal: later passes never move it again.
	f.queries.Complete()
	f.clock.Advance(time.Minute)
	_, err = f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusNotificationTimedOut, f.store.Run("run-1").Status)
}

func TestRefreshOrchestrator_NoTargetsRunSucceedsImmediately(t *testing.T) {
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:05Z"))
	f.seedJob("15 10 * * *", "SELECT 1")

	res, err := f.orchestrator.RunPass(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Initiated)

	runs := f.store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusSuccess, runs[0].Status)
	assert.Len(t, f.queries.Dispatched(), 1)
}

func TestRefreshOrchestrator_JitterAcrossMinuteBoundary(t *testing.T) {
	// The pass for 10:16 starts a little late; prev() still places the fire in the current window.
	f := newRefreshFixture(t, at(t, "2025-06-02T10:16:00.2Z"))
	f.seedJob("16 10 * * *", "SELECT 1")

	res, err := f.orchestrator.RunPass(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Initiated)
}

func TestRefreshOrchestrator_OverlappingPassesInitiateOnce(t *testing.T) {
	ctx := context.Background()
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

	_, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Second)
	res, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 0, res.Initiated)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, f.store.Runs(), 1)
}

func TestRefreshOrchestrator_FireKeyConflictWhenLockerUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.locker.Err = errors.New("redis down")
	f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

	_, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	res, err := f.orchestrator.RunPass(ctx, "test")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, f.store.Runs(), 1)
	// The running execution was reused rather than submitted again.
	assert.Len(t, f.queries.Dispatched(), 1)
}

func TestRefreshOrchestrator_InvalidScheduleSkipped(t *testing.T) {
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("not a cron", "SELECT 1")

	res, err := f.orchestrator.RunPass(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvalidSchedules)
	assert.Equal(t, 0, res.Due)
	assert.Empty(t, f.store.Runs())
}

func TestRefreshOrchestrator_SoftDeletedJobNotDue(t *testing.T) {
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("* * * * *", "SELECT 1")
	deleted := f.clock.Now()
	f.store.PutJob(model.RefreshJob{ID: jobID, OrganizationID: orgID, Schedule: "* * * * *", DeletedAt: &deleted})

	res, err := f.orchestrator.RunPass(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Empty(t, f.store.Runs())
}

func TestRefreshOrchestrator_GraphFailureRecordsErrorRun(t *testing.T) {
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
	f.graph.FailFor(orgID, errors.New("graph unavailable"))

	res, err := f.orchestrator.RunPass(context.Background(), "test")
	require.NoError(t, err, "unit failures do not fail the pass")
	assert.Equal(t, 1, res.Errors)

	runs := f.store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusError, runs[0].Status)
}

func TestRefreshOrchestrator_PhasesIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

	runs := mocks.NewMockRunRepository(ctrl)
	runs.EXPECT().TimeoutStale(gomock.Any(), gomock.Any()).Return(nil, errors.New("sweep failed"))
	runs.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("list failed"))

	orch, err := NewRefreshOrchestrator(RefreshOrchestratorOptions{
		Deps: OrchestratorDeps{
			Jobs:      f.store,
			Orgs:      f.store.Organizations(),
			Runs:      runs,
			Initiator: f.initiator,
			Finisher:  f.finisher,
			Clock:     f.clock,
		},
		Config: config.OrchestratorConfig{RunTimeout: model.DefaultRunTimeout},
	})
	require.NoError(t, err)

	res, err := orch.RunPass(ctx, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout sweep")
	assert.Contains(t, err.Error(), "reconciliation")
	assert.Equal(t, 1, res.Initiated, "due detection still runs")
}

func TestRefreshOrchestrator_SweepBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	now := f.clock.Now()

	runs := mocks.NewMockRunRepository(ctrl)
	full := []*model.RefreshJobRun{{ID: "a", RefreshJobID: jobID}, {ID: "b", RefreshJobID: jobID}}
	gomock.InOrder(
		runs.EXPECT().TimeoutStale(gomock.Any(), core.TimeoutStaleParams{
			Cutoff: now.Add(-model.DefaultRunTimeout), Now: now, BatchSize: 2,
		}).Return(full, nil),
		runs.EXPECT().TimeoutStale(gomock.Any(), gomock.Any()).Return(full[:1], nil),
	)
	runs.EXPECT().ListPending(gomock.Any(), now.Add(-model.DefaultRunTimeout), 10).Return(nil, nil)

	orch, err := NewRefreshOrchestrator(RefreshOrchestratorOptions{
		Deps: OrchestratorDeps{
			Jobs:      f.store,
			Orgs:      f.store.Organizations(),
			Runs:      runs,
			Initiator: f.initiator,
			Finisher:  f.finisher,
			Clock:     f.clock,
		},
		Config: config.OrchestratorConfig{RunTimeout: model.DefaultRunTimeout, SweepBatchSize: 2, ReconcileLimit: 10},
	})
	require.NoError(t, err)

	res, err := orch.RunPass(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TimedOut)
}

func TestRefreshOrchestrator_EmitsPassMetrics(t *testing.T) {
	f := newRefreshFixture(t, at(t, "2025-06-02T10:15:01Z"))
	f.seedJob("* * * * *", "SELECT 1")

	_, err := f.orchestrator.RunPass(context.Background(), "http")
	require.NoError(t, err)

	pass := f.metrics.Named("refresh.pass")
	require.Len(t, pass, 1)
	assert.Equal(t, "http", pass[0].Tags["trigger"])
	assert.Equal(t, "success", pass[0].Tags["result"])
	assert.NotEmpty(t, f.metrics.Named("refresh.pass_phase"))
	assert.NotEmpty(t, f.metrics.Named("refresh.dispatch"))
}

func TestNewRefreshOrchestrator_RequiredDeps(t *testing.T) {
	_, err := NewRefreshOrchestrator(RefreshOrchestratorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RefreshJobRepository is required")
}
