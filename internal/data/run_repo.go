package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/data/pgxutil"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const runColumns = "id, refresh_job_id, status, fire_key, created_at, updated_at"

const (
	runInsertQuery = `
		INSERT INTO refresh_job_runs (refresh_job_id, status, fire_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + runColumns

	runGetByIDQuery = "SELECT " + runColumns + " FROM refresh_job_runs WHERE id = $1"

	runListPendingQuery = `
		SELECT ` + runColumns + `
		FROM refresh_job_runs
		WHERE status = 'pending_notification'
		  AND created_at >= $1
		ORDER BY created_at, id
		LIMIT $2`

	runTransitionQuery = `
		UPDATE refresh_job_runs
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	runTimeoutStaleQuery = `
		UPDATE refresh_job_runs
		SET status = 'notification_timed_out', updated_at = $1
		WHERE id IN (
			SELECT id FROM refresh_job_runs
			WHERE status = 'pending_notification'
			  AND created_at < $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'pending_notification'
		RETURNING ` + runColumns

	runDeleteTerminalQuery = `
		DELETE FROM refresh_job_runs
		WHERE id IN (
			SELECT id FROM refresh_job_runs
			WHERE status = $1
			  AND updated_at < $2
			ORDER BY updated_at
			LIMIT $3
		)`
)

const defaultPendingLimit = 500

// RunRepo persists refresh job runs.
type RunRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
}

// NewRunRepo creates a new RunRepo backed by the system clock.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewRunRepoWithTimeProvider creates a RunRepo with a custom time provider (useful for tests).
func NewRunRepoWithTimeProvider(db *sql.DB, tp core.TimeProvider) *RunRepo {
	return &RunRepo{DB: db, timeProvider: tp}
}

// Create inserts a run. Inserting a second run for the same job and fire key returns a Conflict error.
func (r *RunRepo) Create(ctx context.Context, req model.CreateRunRequest) (*model.RefreshJobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	var fireKey *string
	if req.FireKey != "" {
		fireKey = &req.FireKey
	}

	run, err := scanRun(r.DB.QueryRowContext(ctx, runInsertQuery,
		req.RefreshJobID, req.Status, fireKey, r.timeProvider.Now().UTC()))
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeConflict,
				"refresh job %s already has a run for %s", req.RefreshJobID, req.FireKey)
		}
		return nil, fmt.Errorf("create run: %w", apperrors.MapDBError(err))
	}
	return run, nil
}

// GetByID returns the run with the given id.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*model.RefreshJobRun, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, runGetByIDQuery, id))
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFoundf("run %s not found", id)
		}
		return nil, fmt.Errorf("get run: %w", mapped)
	}
	return run, nil
}

// ListPending returns pending_notification runs created at or after createdAfter, oldest first.
func (r *RunRepo) ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.RefreshJobRun, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	rows, err := r.DB.QueryContext(ctx, runListPendingQuery, createdAfter.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", apperrors.MapDBError(err))
	}
	return collectRuns(rows)
}

// Transition applies t only while the run is still in t.From.
// It returns false when the run is missing or another writer already moved it.
func (r *RunRepo) Transition(ctx context.Context, t model.RunTransition) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	at := t.At
	if at.IsZero() {
		at = r.timeProvider.Now()
	}
	res, err := r.DB.ExecContext(ctx, runTransitionQuery, t.To, at.UTC(), t.RunID, t.From)
	if err != nil {
		return false, fmt.Errorf("transition run: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// TimeoutStale moves up to BatchSize pending runs created before Cutoff to notification_timed_out
// and returns the runs it moved. A concurrent sweeper holding the advisory lock makes this a no-op.
func (r *RunRepo) TimeoutStale(ctx context.Context, params core.TimeoutStaleParams) ([]*model.RefreshJobRun, error) {
	if params.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	now := params.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}

	var out []*model.RefreshJobRun
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryAdvisoryXactLock(ctx, tx, advisoryLockRunsTimeout)
			if err != nil || !locked {
				return err
			}
			rows, err := tx.QueryContext(ctx, runTimeoutStaleQuery, now.UTC(), params.Cutoff.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("timeout stale runs: %w", apperrors.MapDBError(err))
			}
			out, err = collectRuns(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTerminalRuns deletes up to BatchSize runs in a terminal status last updated before Before.
func (r *RunRepo) DeleteTerminalRuns(ctx context.Context, params core.DeleteTerminalRunsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("status %q is not terminal", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryAdvisoryXactLock(ctx, tx, advisoryLockRunsRetention)
			if err != nil || !locked {
				return err
			}
			res, err := tx.ExecContext(ctx, runDeleteTerminalQuery, params.Status, params.Before.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete terminal runs: %w", apperrors.MapDBError(err))
			}
			deleted, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func scanRun(row rowScanner) (*model.RefreshJobRun, error) {
	var run model.RefreshJobRun
	if err := row.Scan(&run.ID, &run.RefreshJobID, &run.Status, &run.FireKey, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]*model.RefreshJobRun, error) {
	defer rows.Close()
	var out []*model.RefreshJobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
