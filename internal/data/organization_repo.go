package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/refresh-orchestrator/internal/domain/model"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

const organizationGetQuery = "SELECT id, name, created_at, deleted_at FROM organizations WHERE id = $1 AND " + activeOnly

// OrganizationRepo reads organizations.
type OrganizationRepo struct {
	DB *sql.DB
}

// NewOrganizationRepo creates a new OrganizationRepo.
func NewOrganizationRepo(db *sql.DB) *OrganizationRepo {
	return &OrganizationRepo{DB: db}
}

// GetByID returns the organization unless it is missing or soft-deleted.
func (r *OrganizationRepo) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	var o model.Organization
	err := r.DB.QueryRowContext(ctx, organizationGetQuery, id).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.DeletedAt)
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return nil, apperrors.NotFoundf("organization %s not found", id)
		}
		return nil, fmt.Errorf("get organization: %w", mapped)
	}
	return &o, nil
}
