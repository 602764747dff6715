package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

// Matches idx_database_queries_signature so the lookup stays an index scan.
const executionFindLatestQuery = `
	SELECT id, statement, database_connection_id, parent_node_id, created_at, deleted_at
	FROM database_queries
	WHERE statement = $1
	  AND database_connection_id = $2
	  AND parent_node_id = $3
	  AND ` + activeOnly + `
	ORDER BY created_at DESC, id DESC
	LIMIT 1`

// ExecutionRepo reads the executions recorded by the query execution service.
type ExecutionRepo struct {
	DB *sql.DB
}

// NewExecutionRepo creates a new ExecutionRepo.
func NewExecutionRepo(db *sql.DB) *ExecutionRepo {
	return &ExecutionRepo{DB: db}
}

// FindLatest returns the newest live execution whose signature matches exactly, or nil when none exists.
func (r *ExecutionRepo) FindLatest(ctx context.Context, sig model.Signature) (*model.QueryExecution, error) {
	var q model.QueryExecution
	err := r.DB.QueryRowContext(ctx, executionFindLatestQuery, sig.Statement, sig.DatabaseConnectionID, sig.ParentNodeID).
		Scan(&q.ID, &q.Statement, &q.DatabaseConnectionID, &q.ParentNodeID, &q.CreatedAt, &q.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest execution: %w", apperrors.MapDBError(err))
	}
	return &q, nil
}
