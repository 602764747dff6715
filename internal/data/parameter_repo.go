package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/data/pgxutil"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const parameterColumns = "id, organization_id, user_id, name, value, created_at, updated_at, deleted_at"

const (
	// Soft-deleted rows are returned on purpose: resolution reuses their ids and keeps their names.
	parameterListForResolutionQuery = `
		SELECT ` + parameterColumns + `
		FROM database_query_parameters
		WHERE organization_id = $1
		  AND (user_id IS NULL OR ($2 <> '' AND user_id = $2))
		ORDER BY created_at, id`

	parameterUpsertQuery = `
		INSERT INTO database_query_parameters (id, organization_id, user_id, name, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET value = EXCLUDED.value,
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		WHERE database_query_parameters.organization_id = EXCLUDED.organization_id`
)

// ParameterRepo reads and writes database query parameters.
type ParameterRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
}

// NewParameterRepo creates a new ParameterRepo.
func NewParameterRepo(db *sql.DB) *ParameterRepo {
	return &ParameterRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewParameterRepoWithTimeProvider creates a ParameterRepo with a custom time provider (useful for tests).
func NewParameterRepoWithTimeProvider(db *sql.DB, tp core.TimeProvider) *ParameterRepo {
	return &ParameterRepo{DB: db, timeProvider: tp}
}

// ListForResolution returns the organization's default rows and the rows owned by userID.
func (r *ParameterRepo) ListForResolution(ctx context.Context, organizationID, userID string) ([]model.QueryParameter, error) {
	rows, err := r.DB.QueryContext(ctx, parameterListForResolutionQuery, organizationID, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list query parameters: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	var out []model.QueryParameter
	for rows.Next() {
		var p model.QueryParameter
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.UserID, &p.Name, &p.Value,
			&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan query parameter: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query parameters: %w", err)
	}
	return out, nil
}

// Upsert writes every row in one transaction. Existing rows keep their id and are revived if soft-deleted.
func (r *ParameterRepo) Upsert(ctx context.Context, writes []model.ParameterWrite) error {
	if len(writes) == 0 {
		return nil
	}
	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			for _, w := range writes {
				if _, err := tx.ExecContext(ctx, parameterUpsertQuery,
					w.ID, w.OrganizationID, w.UserID, w.Name, w.Value, now); err != nil {
					return fmt.Errorf("upsert query parameter %s: %w", w.Name, apperrors.MapDBError(err))
				}
			}
			return nil
		},
	})
}
