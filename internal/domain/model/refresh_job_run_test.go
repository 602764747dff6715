package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []RunStatus{
		RunStatusPendingNotification,
		RunStatusSuccess,
		RunStatusError,
		RunStatusNotificationTimedOut,
	}

	allowed := map[[2]RunStatus]bool{
		{RunStatusPendingNotification, RunStatusSuccess}:              true,
		{RunStatusPendingNotification, RunStatusNotificationTimedOut}: true,
	}

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[[2]RunStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusPendingNotification.Terminal())
	assert.True(t, RunStatusSuccess.Terminal())
	assert.True(t, RunStatusError.Terminal())
	assert.True(t, RunStatusNotificationTimedOut.Terminal())
}

func TestRunStatus_UnmarshalText(t *testing.T) {
	var s RunStatus
	require.NoError(t, s.UnmarshalText([]byte(" Success ")))
	assert.Equal(t, RunStatusSuccess, s)

	require.Error(t, s.UnmarshalText([]byte("finished")))
	assert.Equal(t, RunStatusSuccess, s, "failed parse must not overwrite")
}

func TestInitialRunStatus(t *testing.T) {
	t.Run("no targets starts in success", func(t *testing.T) {
		job := &RefreshJob{ID: "j1"}
		assert.Equal(t, RunStatusSuccess, InitialRunStatus(job, nil))
	})

	t.Run("blank targets do not count", func(t *testing.T) {
		job := &RefreshJob{ID: "j1", EmailTo: []string{" "}, SlackTo: []string{""}}
		assert.Equal(t, RunStatusSuccess, InitialRunStatus(job, nil))
	})

	t.Run("slack target starts pending", func(t *testing.T) {
		job := &RefreshJob{ID: "j1", SlackTo: []string{"https://hooks.slack.com/services/x"}}
		assert.Equal(t, RunStatusPendingNotification, InitialRunStatus(job, nil))
	})

	t.Run("initiation failure wins", func(t *testing.T) {
		job := &RefreshJob{ID: "j1", SlackTo: []string{"https://hooks.slack.com/services/x"}}
		assert.Equal(t, RunStatusError, InitialRunStatus(job, errors.New("graph down")))
	})

	t.Run("nil job with failure", func(t *testing.T) {
		assert.Equal(t, RunStatusError, InitialRunStatus(nil, errors.New("not found")))
	})
}

func TestRunTransition_Validate(t *testing.T) {
	require.NoError(t, RunTransition{RunID: "r1", From: RunStatusPendingNotification, To: RunStatusSuccess}.Validate())
	require.Error(t, RunTransition{RunID: "r1", From: RunStatusNotificationTimedOut, To: RunStatusSuccess}.Validate())
	require.Error(t, RunTransition{From: RunStatusPendingNotification, To: RunStatusSuccess}.Validate())
}

func TestMetricNode_Qualifies(t *testing.T) {
	assert.True(t, MetricNode{ID: "n", Statement: "SELECT 1", DatabaseConnectionID: "c"}.Qualifies())
	assert.False(t, MetricNode{ID: "n", Statement: "  ", DatabaseConnectionID: "c"}.Qualifies())
	assert.False(t, MetricNode{ID: "n", Statement: "SELECT 1"}.Qualifies())
}

func TestRefreshJob_Targets(t *testing.T) {
	job := &RefreshJob{
		EmailTo: []string{"a@example.com", " ", "b@example.com "},
		SlackTo: []string{""},
	}
	targets := job.Targets()
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, targets.Emails)
	assert.Empty(t, targets.SlackWebhooks)
	assert.False(t, targets.Empty())
}
