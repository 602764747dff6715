package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/mocks/memory"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
)

const (
	orgID  = "org-1"
	jobID  = "job-1"
	nodeID = "node-1"
	connID = "conn-1"
)

// refreshFixture wires every service against in-memory collaborators.
type refreshFixture struct {
	clock    *data.FixedTimeProvider
	store    *memory.Store
	graph    *memory.Graph
	queries  *memory.Queries
	notifier *memory.Notifier
	locker   *memory.Locker
	metrics  *statsd.Recorder

	params       *ParameterService
	dispatcher   *QueryDispatcher
	initiator    *RefreshInitiator
	finisher     *RefreshFinisher
	orchestrator *RefreshOrchestrator
}

func newRefreshFixture(t *testing.T, now time.Time) *refreshFixture {
	t.Helper()

	f := &refreshFixture{
		clock:    data.NewFixedTimeProvider(now),
		notifier: &memory.Notifier{},
		locker:   &memory.Locker{},
		metrics:  &statsd.Recorder{},
		graph:    memory.NewGraph(),
	}
	f.store = memory.NewStore(f.clock)
	f.queries = memory.NewQueries(f.store)

	var err error
	f.params, err = NewParameterService(ParameterServiceOptions{Repo: f.store})
	require.NoError(t, err)

	f.dispatcher, err = NewQueryDispatcher(QueryDispatcherOptions{
		Executions: f.store,
		Queries:    f.queries,
		Metrics:    f.metrics,
	})
	require.NoError(t, err)

	f.initiator, err = NewRefreshInitiator(RefreshInitiatorOptions{
		Deps: InitiatorDeps{
			Jobs:       f.store,
			Runs:       f.store,
			Graph:      f.graph,
			Params:     f.params,
			Dispatcher: f.dispatcher,
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	f.finisher, err = NewRefreshFinisher(RefreshFinisherOptions{
		Deps: FinisherDeps{
			Jobs:       f.store,
			Orgs:       f.store.Organizations(),
			Runs:       f.store,
			Graph:      f.graph,
			Params:     f.params,
			Dispatcher: f.dispatcher,
			Notifier:   f.notifier,
			Clock:      f.clock,
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	f.orchestrator, err = NewRefreshOrchestrator(RefreshOrchestratorOptions{
		Deps: OrchestratorDeps{
			Jobs:      f.store,
			Orgs:      f.store.Organizations(),
			Runs:      f.store,
			Initiator: f.initiator,
			Finisher:  f.finisher,
			Notifier:  f.notifier,
			Locker:    f.locker,
			Clock:     f.clock,
		},
		Config: config.OrchestratorConfig{
			Concurrency:    4,
			RunTimeout:     model.DefaultRunTimeout,
			LockTTL:        2 * time.Minute,
			SweepBatchSize: 100,
			ReconcileLimit: 100,
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)

	return f
}

// seedJob stores org O, job J with the given schedule and slack targets, and node N with statement.
func (f *refreshFixture) seedJob(schedule, statement string, slack ...string) {
	f.store.PutOrganization(model.Organization{ID: orgID, Name: "acme"})
	f.store.PutJob(model.RefreshJob{
		ID:             jobID,
		OrganizationID: orgID,
		Schedule:       schedule,
		SlackTo:        slack,
		CreatedAt:      f.clock.Now(),
		UpdatedAt:      f.clock.Now(),
	})
	f.graph.SetNodes(orgID,
		model.MetricNode{ID: nodeID, Statement: statement, DatabaseConnectionID: connID},
		model.MetricNode{ID: "node-without-query"},
	)
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, value)
	require.NoError(t, err)
	return ts
}
