package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/internal/observability/statsd"
	"github.com/target/refresh-orchestrator/internal/service"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	triggers []string
	errs     []error
	onPass   func(n int)
}

func (f *fakeOrchestrator) RunPass(_ context.Context, trigger string) (*service.PassResult, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, trigger)
	n := len(f.triggers)
	var err error
	if n <= len(f.errs) {
		err = f.errs[n-1]
	}
	f.mu.Unlock()
	if f.onPass != nil {
		f.onPass(n)
	}
	return &service.PassResult{Trigger: trigger, Initiated: 1}, err
}

func TestRunner_UntilNextTick(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Orchestrator: &fakeOrchestrator{}})
	require.NoError(t, err)

	tests := []struct {
		now  string
		want time.Duration
	}{
		{now: "2025-06-02T10:15:00Z", want: 2 * time.Second},
		{now: "2025-06-02T10:15:01.5Z", want: 500 * time.Millisecond},
		{now: "2025-06-02T10:15:02Z", want: time.Minute},
		{now: "2025-06-02T10:15:30Z", want: 32 * time.Second},
		{now: "2025-06-02T12:15:30+02:00", want: 32 * time.Second},
	}
	for _, tt := range tests {
		now, err := time.Parse(time.RFC3339Nano, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.untilNextTick(now), tt.now)
	}
}

func TestNewRunner_Interval(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{in: 0, want: time.Minute},
		{in: 30 * time.Second, want: time.Minute},
		{in: time.Minute, want: time.Minute},
		{in: 90 * time.Second, want: 2 * time.Minute},
		{in: 5 * time.Minute, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		r, err := NewRunner(RunnerOptions{Orchestrator: &fakeOrchestrator{}, Interval: tt.in})
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.interval, "interval %v", tt.in)
	}

	_, err := NewRunner(RunnerOptions{})
	assert.EqualError(t, err, "orchestrator is required")
}

func TestRunner_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := &fakeOrchestrator{errs: []error{errors.New("graph down")}}
	orch.onPass = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	now := time.Date(2025, 6, 2, 10, 15, 30, 0, time.UTC)
	rec := &statsd.Recorder{}
	r, err := NewRunner(RunnerOptions{
		Orchestrator: orch,
		Metrics:      rec,
		Now:          func() time.Time { return now },
		After: func(d time.Duration) <-chan time.Time {
			mu.Lock()
			waits = append(waits, d)
			mu.Unlock()
			if ctx.Err() != nil {
				return nil
			}
			ch := make(chan time.Time, 1)
			ch <- now.Add(d)
			return ch
		},
	})
	require.NoError(t, err)

	require.NoError(t, r.Run(ctx))

	assert.Equal(t, []string{service.TriggerTick, service.TriggerTick, service.TriggerTick}, orch.triggers)
	assert.Equal(t, 32*time.Second, waits[0])

	ticks := rec.Named("scheduler.tick")
	require.Len(t, ticks, 3)
	assert.Equal(t, "error", ticks[0].Tags["result"])
	assert.Equal(t, "success", ticks[1].Tags["result"])
	assert.Len(t, rec.Named("scheduler.last_success_epoch"), 2)
}

func TestRunner_RunDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	r, err := NewRunner(RunnerOptions{
		Orchestrator: &fakeOrchestrator{},
		After:        func(time.Duration) <-chan time.Time { return nil },
	})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
}
