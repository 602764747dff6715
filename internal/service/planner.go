package service

import (
	"context"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/domain/refresh"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

// queryPlanner derives the parameterized queries of an organization's graph.
// Initiation and completion share it so both sides compute identical signatures.
type queryPlanner struct {
	graph  core.GraphService
	params *ParameterService
}

// plan loads the current graph and organization-level parameters. Nothing is cached between calls.
func (p queryPlanner) plan(ctx context.Context, organizationID string) ([]refresh.PlannedQuery, error) {
	nodes, err := p.graph.GetNodes(ctx, organizationID)
	if err != nil {
		if apperrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, apperrors.Dependency("graph service", err)
	}
	params, err := p.params.Resolve(ctx, organizationID, "")
	if err != nil {
		return nil, err
	}
	return refresh.PlanQueries(nodes, params), nil
}
