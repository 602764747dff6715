package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

type recordingRepo struct {
	mu    sync.Mutex
	calls []core.DeleteTerminalRunsParams
}

func (r *recordingRepo) DeleteTerminalRuns(_ context.Context, p core.DeleteTerminalRunsParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p)
	return 0, nil
}

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	assert.EqualError(t, err, "database connection is required")
}

func TestRunner_RunOnce(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	repo := &recordingRepo{}
	r, err := NewRunner(RunnerOptions{
		Repo:   repo,
		Clock:  data.NewFixedTimeProvider(now),
		Config: config.ReaperConfig{SuccessMaxAge: time.Hour},
	})
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(context.Background()))

	require.Len(t, repo.calls, 3)
	statuses := make(map[model.RunStatus]time.Time, len(repo.calls))
	for _, c := range repo.calls {
		statuses[c.Status] = c.Before
	}
	// Retention ages below a day are raised to the floor.
	assert.Equal(t, now.Add(-24*time.Hour), statuses[model.RunStatusSuccess])
	assert.Contains(t, statuses, model.RunStatusError)
	assert.Contains(t, statuses, model.RunStatusNotificationTimedOut)
}
