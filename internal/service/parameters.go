package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/model"
	"github.com/target/refresh-orchestrator/internal/domain/refresh"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

// ParameterServiceOptions groups dependencies for ParameterService.
type ParameterServiceOptions struct {
	Repo   core.ParameterRepository // Required: parameter store
	NewID  refresh.IDGenerator      // Optional: record id generator (defaults to uuid)
	Logger *slog.Logger             // Optional: structured logger
}

// ParameterService resolves and stores query parameters.
type ParameterService struct {
	repo   core.ParameterRepository
	newID  refresh.IDGenerator
	logger *slog.Logger
}

// NewParameterService constructs a ParameterService.
func NewParameterService(opts ParameterServiceOptions) (*ParameterService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ParameterRepository is required")
	}
	newID := opts.NewID
	if newID == nil {
		newID = refresh.NewRecordID
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ParameterService{
		repo:   opts.Repo,
		newID:  newID,
		logger: logger.With("component", "parameter_service"),
	}, nil
}

// Resolve returns the parameters in effect for the organization, or for one of its users when userID is set.
func (s *ParameterService) Resolve(ctx context.Context, organizationID, userID string) (model.ResolvedParameters, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperrors.ValidationField("organization_id", "organization id is required")
	}
	rows, err := s.repo.ListForResolution(ctx, organizationID, userID)
	if err != nil {
		return nil, apperrors.Dependency("parameter store", err)
	}
	return refresh.ResolveParameters(rows, strings.TrimSpace(userID), s.newID), nil
}

// Save stores values for the organization default scope, or for userID when set, and returns the
// parameters as resolved afterwards. Record ids come from resolution so repeated saves update in place.
func (s *ParameterService) Save(
	ctx context.Context,
	organizationID, userID string,
	values map[string]string,
) (model.ResolvedParameters, error) {
	current, err := s.Resolve(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}

	userID = strings.TrimSpace(userID)
	writes := make([]model.ParameterWrite, 0, len(values))
	for raw, value := range values {
		name := refresh.NormalizeName(raw)
		if name == "" {
			return nil, apperrors.ValidationField("name", "parameter name must not be blank")
		}
		rp, ok := current[name]
		if !ok {
			rp = model.ResolvedParameter{UserRecordID: s.newID(), OrgDefaultRecordID: s.newID()}
		}
		w := model.ParameterWrite{OrganizationID: organizationID, Name: name, Value: value}
		if userID != "" {
			w.ID = rp.UserRecordID
			w.UserID = &userID
		} else {
			w.ID = rp.OrgDefaultRecordID
		}
		writes = append(writes, w)
	}

	if err := s.repo.Upsert(ctx, writes); err != nil {
		return nil, fmt.Errorf("save query parameters: %w", err)
	}
	s.logger.InfoContext(ctx, "query parameters saved",
		"organization_id", organizationID,
		"user_scoped", userID != "",
		"count", len(writes),
	)
	return s.Resolve(ctx, organizationID, userID)
}
