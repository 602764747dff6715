package refresh

import "github.com/target/refresh-orchestrator/internal/domain/model"

// PlannedQuery is one qualifying node together with the signature its query runs under.
type PlannedQuery struct {
	Node      model.MetricNode
	Signature model.Signature
}

// PlanQueries keeps the nodes that carry a statement and a connection and parameterizes each one.
// Initiation and completion both call this so they derive the same signatures.
func PlanQueries(nodes []model.MetricNode, params model.ResolvedParameters) []PlannedQuery {
	planned := make([]PlannedQuery, 0, len(nodes))
	for _, n := range nodes {
		if !n.Qualifies() {
			continue
		}
		planned = append(planned, PlannedQuery{
			Node: n,
			Signature: model.Signature{
				Statement:            Parameterize(n.Statement, params),
				DatabaseConnectionID: n.DatabaseConnectionID,
				ParentNodeID:         n.ID,
			},
		})
	}
	return planned
}
