package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const refreshJobColumns = "id, organization_id, schedule, email_to, slack_to, created_at, updated_at, deleted_at"

var (
	refreshJobGetActiveQuery = "SELECT " + refreshJobColumns + " FROM refresh_jobs WHERE id = $1 AND " + activeOnly
	refreshJobListQuery      = "SELECT " + refreshJobColumns + " FROM refresh_jobs WHERE " + activeOnly + " ORDER BY created_at, id"
)

// RefreshJobRepo reads refresh jobs. The engine never writes them.
type RefreshJobRepo struct {
	DB *sql.DB
}

// NewRefreshJobRepo creates a new RefreshJobRepo.
func NewRefreshJobRepo(db *sql.DB) *RefreshJobRepo {
	return &RefreshJobRepo{DB: db}
}

// GetActive returns the job with the given id unless it is soft-deleted.
func (r *RefreshJobRepo) GetActive(ctx context.Context, id string) (*model.RefreshJob, error) {
	job, err := scanRefreshJob(r.DB.QueryRowContext(ctx, refreshJobGetActiveQuery, id))
	if err != nil {
		if mapped := apperrors.MapDBError(err); apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFoundf("refresh job %s not found", id)
		}
		return nil, fmt.Errorf("get refresh job: %w", apperrors.MapDBError(err))
	}
	return job, nil
}

// ListActive returns every job that has not been soft-deleted.
func (r *RefreshJobRepo) ListActive(ctx context.Context) ([]*model.RefreshJob, error) {
	rows, err := r.DB.QueryContext(ctx, refreshJobListQuery)
	if err != nil {
		return nil, fmt.Errorf("list refresh jobs: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	var out []*model.RefreshJob
	for rows.Next() {
		job, err := scanRefreshJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh jobs: %w", err)
	}
	return out, nil
}

func scanRefreshJob(row rowScanner) (*model.RefreshJob, error) {
	var j model.RefreshJob
	if err := row.Scan(
		&j.ID,
		&j.OrganizationID,
		&j.Schedule,
		textArray(&j.EmailTo),
		textArray(&j.SlackTo),
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &j, nil
}
