// Package memory contains simple hand-written in-memory test doubles for the core ports.
// They are lightweight and suitable for scenario tests without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

// Ensure compile-time conformance to the core ports.
var (
	_ core.RefreshJobRepository   = (*Store)(nil)
	_ core.OrganizationRepository = Orgs{}
	_ core.RunRepository          = (*Store)(nil)
	_ core.RunRetentionRepository = (*Store)(nil)
	_ core.ParameterRepository    = (*Store)(nil)
	_ core.ExecutionRepository    = (*Store)(nil)
	_ core.GraphService           = (*Graph)(nil)
	_ core.QueryService           = (*Queries)(nil)
	_ core.RunNotifier            = (*Notifier)(nil)
	_ core.FireLocker             = (*Locker)(nil)
)

// Store keeps jobs, organizations, runs, parameters and executions in memory.
type Store struct {
	mu         sync.Mutex
	clock      core.TimeProvider
	jobs       map[string]*model.RefreshJob
	orgs       map[string]*model.Organization
	runs       map[string]*model.RefreshJobRun
	params     map[string]*model.QueryParameter
	executions []*model.QueryExecution
}

// NewStore creates an empty store stamping rows with clock.
func NewStore(clock core.TimeProvider) *Store {
	return &Store{
		clock:  clock,
		jobs:   make(map[string]*model.RefreshJob),
		orgs:   make(map[string]*model.Organization),
		runs:   make(map[string]*model.RefreshJobRun),
		params: make(map[string]*model.QueryParameter),
	}
}

// PutJob stores a copy of job.
func (s *Store) PutJob(job model.RefreshJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
}

// PutOrganization stores a copy of org.
func (s *Store) PutOrganization(org model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = &org
}

// PutRun stores a copy of run, keeping its timestamps.
func (s *Store) PutRun(run model.RefreshJobRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &run
}

// PutParameter stores a copy of p.
func (s *Store) PutParameter(p model.QueryParameter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[p.ID] = &p
}

// Run returns a copy of the run, or nil.
func (s *Store) Run(id string) *model.RefreshJobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// Runs returns copies of every run ordered by creation.
func (s *Store) Runs() []*model.RefreshJobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RefreshJobRun, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		out = append(out, &cp)
	}
	sortRuns(out)
	return out
}

// GetActive implements core.RefreshJobRepository.
func (s *Store) GetActive(_ context.Context, id string) (*model.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !job.Active() {
		return nil, apperrors.NotFoundf("refresh job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

// ListActive implements core.RefreshJobRepository.
func (s *Store) ListActive(_ context.Context) ([]*model.RefreshJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RefreshJob
	for _, job := range s.jobs {
		if job.Active() {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Orgs exposes the store's organizations as a core.OrganizationRepository.
type Orgs struct{ *Store }

// GetByID implements core.OrganizationRepository.
func (o Orgs) GetByID(_ context.Context, id string) (*model.Organization, error) {
	s := o.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok || org.DeletedAt != nil {
		return nil, apperrors.NotFoundf("organization %s not found", id)
	}
	cp := *org
	return &cp, nil
}

// Create implements core.RunRepository.
func (s *Store) Create(_ context.Context, req model.CreateRunRequest) (*model.RefreshJobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[req.RefreshJobID]; !ok {
		return nil, apperrors.Validationf("refresh job %s does not exist", req.RefreshJobID)
	}
	if req.FireKey != "" {
		for _, r := range s.runs {
			if r.RefreshJobID == req.RefreshJobID && r.FireKey != nil && *r.FireKey == req.FireKey {
				return nil, apperrors.Conflict("run already exists for this fire time")
			}
		}
	}
	now := s.clock.Now()
	run := &model.RefreshJobRun{
		ID:           uuid.NewString(),
		RefreshJobID: req.RefreshJobID,
		Status:       req.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.FireKey != "" {
		key := req.FireKey
		run.FireKey = &key
	}
	s.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

// GetByID implements core.RunRepository.
func (s *Store) GetByID(_ context.Context, id string) (*model.RefreshJobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFoundf("refresh job run %s not found", id)
	}
	cp := *r
	return &cp, nil
}

// ListPending implements core.RunRepository.
func (s *Store) ListPending(_ context.Context, createdAfter time.Time, limit int) ([]*model.RefreshJobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RefreshJobRun
	for _, r := range s.runs {
		if r.Status == model.RunStatusPendingNotification && !r.CreatedAt.Before(createdAfter) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortRuns(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition implements core.RunRepository.
func (s *Store) Transition(_ context.Context, t model.RunTransition) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[t.RunID]
	if !ok || r.Status != t.From {
		return false, nil
	}
	r.Status = t.To
	r.UpdatedAt = t.At
	return true, nil
}

// TimeoutStale implements core.RunRepository.
func (s *Store) TimeoutStale(_ context.Context, params core.TimeoutStaleParams) ([]*model.RefreshJobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*model.RefreshJobRun
	for _, r := range s.runs {
		if r.Status == model.RunStatusPendingNotification && r.CreatedAt.Before(params.Cutoff) {
			stale = append(stale, r)
		}
	}
	sortRuns(stale)
	if params.BatchSize > 0 && len(stale) > params.BatchSize {
		stale = stale[:params.BatchSize]
	}
	out := make([]*model.RefreshJobRun, 0, len(stale))
	for _, r := range stale {
		r.Status = model.RunStatusNotificationTimedOut
		r.UpdatedAt = params.Now
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteTerminalRuns implements core.RunRetentionRepository.
func (s *Store) DeleteTerminalRuns(_ context.Context, params core.DeleteTerminalRunsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("status %s is not terminal", params.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.runs {
		if params.BatchSize > 0 && n >= int64(params.BatchSize) {
			break
		}
		if r.Status == params.Status && r.UpdatedAt.Before(params.Before) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}

// ListForResolution implements core.ParameterRepository.
func (s *Store) ListForResolution(_ context.Context, organizationID, userID string) ([]model.QueryParameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueryParameter
	for _, p := range s.params {
		if p.OrganizationID != organizationID {
			continue
		}
		if p.UserID == nil || (userID != "" && *p.UserID == userID) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert implements core.ParameterRepository.
func (s *Store) Upsert(_ context.Context, writes []model.ParameterWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, w := range writes {
		if p, ok := s.params[w.ID]; ok {
			if p.OrganizationID != w.OrganizationID {
				continue
			}
			p.Name, p.Value, p.UpdatedAt, p.DeletedAt = w.Name, w.Value, now, nil
			continue
		}
		s.params[w.ID] = &model.QueryParameter{
			ID:             w.ID,
			OrganizationID: w.OrganizationID,
			UserID:         w.UserID,
			Name:           w.Name,
			Value:          w.Value,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return nil
}

// FindLatest implements core.ExecutionRepository.
func (s *Store) FindLatest(_ context.Context, sig model.Signature) (*model.QueryExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.QueryExecution
	for _, e := range s.executions {
		if e.DeletedAt != nil || e.Signature() != sig {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// RecordExecution appends an execution the way the query execution service would.
func (s *Store) RecordExecution(sig model.Signature) *model.QueryExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &model.QueryExecution{
		ID:                   uuid.NewString(),
		Statement:            sig.Statement,
		DatabaseConnectionID: sig.DatabaseConnectionID,
		ParentNodeID:         sig.ParentNodeID,
		CreatedAt:            s.clock.Now(),
	}
	s.executions = append(s.executions, e)
	cp := *e
	return &cp
}

// Executions returns copies of every recorded execution in insertion order.
func (s *Store) Executions() []model.QueryExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueryExecution, 0, len(s.executions))
	for _, e := range s.executions {
		out = append(out, *e)
	}
	return out
}

func sortRuns(runs []*model.RefreshJobRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}

// Organizations returns the organization view of the store.
func (s *Store) Organizations() Orgs {
	return Orgs{s}
}
