package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/mocks"
)

func pendingRun(created time.Time) *model.RefreshJobRun {
	return &model.RefreshJobRun{
		ID:           "run-1",
		RefreshJobID: jobID,
		Status:       model.RunStatusPendingNotification,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestRefreshFinisher_Finish(t *testing.T) {
	ctx := context.Background()
	created := at(t, "2025-06-02T10:15:00Z")
	sig := model.Signature{Statement: "SELECT 1", DatabaseConnectionID: connID, ParentNodeID: nodeID}

	t.Run("waits while any query is running", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
		f.store.PutRun(*pendingRun(created))
		_, err := f.queries.Dispatch(ctx, sig)
		require.NoError(t, err)

		res, err := f.finisher.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeStillRunning, res.Outcome)
		assert.Equal(t, model.RunStatusPendingNotification, f.store.Run("run-1").Status)
		assert.Empty(t, f.notifier.Sent())
	})

	t.Run("failed executions count as done", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
		f.store.PutRun(*pendingRun(created))
		_, err := f.queries.Dispatch(ctx, sig)
		require.NoError(t, err)
		f.queries.Fail()

		res, err := f.finisher.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeFinished, res.Outcome)
		assert.Equal(t, model.RunStatusSuccess, res.Run.Status)
		assert.Len(t, f.notifier.Sent(), 1)
	})

	t.Run("nodes without executions have nothing to wait for", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
		f.store.PutRun(*pendingRun(created))

		res, err := f.finisher.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeFinished, res.Outcome)
	})

	t.Run("terminal runs are left alone", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		run := pendingRun(created)
		run.Status = model.RunStatusNotificationTimedOut

		res, err := f.finisher.Finish(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeNotPending, res.Outcome)
		assert.Equal(t, 0, f.graph.Calls())
	})

	t.Run("runs older than the timeout belong to the sweep", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(3601*time.Second))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

		res, err := f.finisher.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeExpired, res.Outcome)
		assert.Equal(t, 0, f.graph.Calls())
	})

	t.Run("losing the transition race does not notify", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")

		runs := mocks.NewMockRunRepository(ctrl)
		runs.EXPECT().Transition(gomock.Any(), model.RunTransition{
			RunID: "run-1",
			From:  model.RunStatusPendingNotification,
			To:    model.RunStatusSuccess,
			At:    f.clock.Now(),
		}).Return(false, nil)

		svc, err := NewRefreshFinisher(RefreshFinisherOptions{Deps: FinisherDeps{
			Jobs:       f.store,
			Orgs:       f.store.Organizations(),
			Runs:       runs,
			Graph:      f.graph,
			Params:     f.params,
			Dispatcher: f.dispatcher,
			Notifier:   f.notifier,
			Clock:      f.clock,
		}})
		require.NoError(t, err)

		res, err := svc.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeNotPending, res.Outcome)
		assert.Empty(t, f.notifier.Sent())
	})

	t.Run("graph failure leaves the run pending", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
		f.store.PutRun(*pendingRun(created))
		f.graph.FailFor(orgID, errors.New("graph down"))

		_, err := f.finisher.Finish(ctx, pendingRun(created))
		require.Error(t, err)
		assert.Equal(t, model.RunStatusPendingNotification, f.store.Run("run-1").Status)
	})

	t.Run("node set is re-derived from the current graph", func(t *testing.T) {
		f := newRefreshFixture(t, created.Add(time.Minute))
		f.seedJob("* * * * *", "SELECT 1", "https://hooks.slack.com/services/T/B/X")
		f.store.PutRun(*pendingRun(created))
		_, err := f.queries.Dispatch(ctx, sig)
		require.NoError(t, err)

		// The node with the running query was removed from the graph after initiation.
		f.graph.SetNodes(orgID, model.MetricNode{ID: "node-2", Statement: "SELECT 2", DatabaseConnectionID: connID})

		res, err := f.finisher.Finish(ctx, pendingRun(created))
		require.NoError(t, err)
		assert.Equal(t, FinishOutcomeFinished, res.Outcome)
	})
}

func TestRefreshFinisher_FinishByID(t *testing.T) {
	created := at(t, "2025-06-02T10:15:00Z")
	f := newRefreshFixture(t, created.Add(time.Minute))
	f.seedJob("* * * * *", "SELECT 1")
	f.store.PutRun(*pendingRun(created))

	res, err := f.finisher.FinishByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, FinishOutcomeFinished, res.Outcome)
	assert.Empty(t, f.notifier.Sent(), "jobs without targets are not announced")

	_, err = f.finisher.FinishByID(context.Background(), "missing")
	require.Error(t, err)
}
