// Package core declares the ports between the refresh services and their adapters.
package core

import (
	"context"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// This file contains the record-store ports. Implementations live in internal/data and
// apply the active-record (deleted_at IS NULL) predicate themselves.

// RefreshJobRepository reads refresh jobs. Jobs are never written by the engine.
type RefreshJobRepository interface {
	// GetActive returns the job unless it is missing or soft-deleted (NotFound).
	GetActive(ctx context.Context, id string) (*model.RefreshJob, error)
	// ListActive returns every job that is not soft-deleted.
	ListActive(ctx context.Context) ([]*model.RefreshJob, error)
}

// OrganizationRepository reads organizations.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*model.Organization, error)
}

// RunRepository persists refresh job runs.
type RunRepository interface {
	// Create inserts a run. A duplicate (refresh_job_id, fire_key) returns a Conflict error.
	Create(ctx context.Context, req model.CreateRunRequest) (*model.RefreshJobRun, error)
	GetByID(ctx context.Context, id string) (*model.RefreshJobRun, error)
	// ListPending returns pending_notification runs created at or after createdAfter, oldest first.
	ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.RefreshJobRun, error)
	// Transition applies the status change only while the run is still in t.From.
	// It reports false when another writer moved the run first.
	Transition(ctx context.Context, t model.RunTransition) (bool, error)
	// TimeoutStale moves pending runs created before cutoff to notification_timed_out and returns them.
	TimeoutStale(ctx context.Context, params TimeoutStaleParams) ([]*model.RefreshJobRun, error)
}

// TimeoutStaleParams groups parameters for RunRepository.TimeoutStale.
type TimeoutStaleParams struct {
	Cutoff    time.Time
	Now       time.Time
	BatchSize int
}

// RunRetentionRepository deletes old terminal runs.
type RunRetentionRepository interface {
	DeleteTerminalRuns(ctx context.Context, params DeleteTerminalRunsParams) (int64, error)
}

// DeleteTerminalRunsParams groups parameters for RunRetentionRepository.DeleteTerminalRuns.
type DeleteTerminalRunsParams struct {
	Status    model.RunStatus
	Before    time.Time
	BatchSize int
}

// ParameterRepository reads and writes query parameter rows.
type ParameterRepository interface {
	// ListForResolution returns the organization's active defaults plus every row owned by userID,
	// including soft-deleted ones so their record ids can be reused. An empty userID returns defaults only.
	ListForResolution(ctx context.Context, organizationID, userID string) ([]model.QueryParameter, error)
	// Upsert writes rows keyed by id, reviving soft-deleted rows.
	Upsert(ctx context.Context, writes []model.ParameterWrite) error
}

// ExecutionRepository looks up query executions recorded by the query execution service.
type ExecutionRepository interface {
	// FindLatest returns the newest non-deleted execution with exactly this signature, or nil.
	FindLatest(ctx context.Context, sig model.Signature) (*model.QueryExecution, error)
}
