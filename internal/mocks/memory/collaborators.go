package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// Graph serves fixed node lists per organization.
type Graph struct {
	mu    sync.Mutex
	nodes map[string][]model.MetricNode
	errs  map[string]error
	calls int
}

// NewGraph creates an empty graph service.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string][]model.MetricNode), errs: make(map[string]error)}
}

// SetNodes replaces the organization's nodes.
func (g *Graph) SetNodes(organizationID string, nodes ...model.MetricNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[organizationID] = nodes
}

// FailFor makes GetNodes fail for the organization. A nil err clears the failure.
func (g *Graph) FailFor(organizationID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[organizationID] = err
}

// Calls returns how many times GetNodes ran.
func (g *Graph) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// GetNodes implements core.GraphService.
func (g *Graph) GetNodes(_ context.Context, organizationID string) ([]model.MetricNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.errs[organizationID]; err != nil {
		return nil, err
	}
	return append([]model.MetricNode(nil), g.nodes[organizationID]...), nil
}

// ErrDispatchRejected is returned by Queries for statements registered with Reject.
var ErrDispatchRejected = errors.New("query service rejected the statement")

// Queries records dispatched executions in a Store so FindLatest sees them.
// New executions are running until Complete or Fail is called.
type Queries struct {
	mu       sync.Mutex
	store    *Store
	status   map[string]model.ExecutionStatus
	rejected map[string]bool
	sigs     []model.Signature
}

// NewQueries creates a query service backed by store.
func NewQueries(store *Store) *Queries {
	return &Queries{
		store:    store,
		status:   make(map[string]model.ExecutionStatus),
		rejected: make(map[string]bool),
	}
}

// Reject makes Dispatch fail for the statement.
func (q *Queries) Reject(statement string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rejected[statement] = true
}

// Dispatch implements core.QueryService.
func (q *Queries) Dispatch(_ context.Context, sig model.Signature) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rejected[sig.Statement] {
		return "", ErrDispatchRejected
	}
	exec := q.store.RecordExecution(sig)
	q.status[exec.ID] = model.ExecutionRunning
	q.sigs = append(q.sigs, sig)
	return exec.ID, nil
}

// Status implements core.QueryService. Unknown executions are reported finished.
func (q *Queries) Status(_ context.Context, executionID string) (model.ExecutionStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.status[executionID]; ok {
		return s, nil
	}
	return model.ExecutionFinished, nil
}

// Complete marks every execution finished.
func (q *Queries) Complete() {
	q.setAll(model.ExecutionFinished)
}

// Fail marks every execution failed.
func (q *Queries) Fail() {
	q.setAll(model.ExecutionFailed)
}

func (q *Queries) setAll(status model.ExecutionStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.status {
		q.status[id] = status
	}
}

// Dispatched returns the signatures submitted so far.
func (q *Queries) Dispatched() []model.Signature {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Signature(nil), q.sigs...)
}

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []model.RunNotification
}

// NotifyRun implements core.RunNotifier.
func (n *Notifier) NotifyRun(_ context.Context, rn model.RunNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, rn)
}

// Sent returns the recorded notifications.
func (n *Notifier) Sent() []model.RunNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.RunNotification(nil), n.sent...)
}

// Locker grants each key once. Err, when set, is returned instead.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
	Err  error
}

// Acquire implements core.FireLocker.
func (l *Locker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return false, l.Err
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}
