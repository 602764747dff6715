package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/refresh-orchestrator/internal/domain/model"
)

func params(values map[string]string) model.ResolvedParameters {
	out := make(model.ResolvedParameters, len(values))
	for k, v := range values {
		out[k] = model.ResolvedParameter{EffectiveValue: v}
	}
	return out
}

func TestParameterize(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		values    map[string]string
		want      string
	}{
		{
			name:      "simple substitution",
			statement: "SELECT {{beginning_date}}",
			values:    map[string]string{"beginning_date": "X"},
			want:      "SELECT X",
		},
		{
			name:      "unknown placeholder left verbatim",
			statement: "SELECT {{unknown}}",
			values:    map[string]string{},
			want:      "SELECT {{unknown}}",
		},
		{
			name:      "unknown kept while known replaced",
			statement: "SELECT {{ a }}, {{b}}",
			values:    map[string]string{"a": "1"},
			want:      "SELECT 1, {{b}}",
		},
		{
			name:      "case and whitespace tolerant",
			statement: "WHERE d >= '{{ Beginning Date }}'",
			values:    map[string]string{"beginning_date": "2024-01-01"},
			want:      "WHERE d >= '2024-01-01'",
		},
		{
			name:      "repeated placeholder",
			statement: "{{x}} + {{X}}",
			values:    map[string]string{"x": "2"},
			want:      "2 + 2",
		},
		{
			name:      "no escaping of values",
			statement: "WHERE name = {{name}}",
			values:    map[string]string{"name": "'o''brien'"},
			want:      "WHERE name = 'o''brien'",
		},
		{
			name:      "empty value still substitutes",
			statement: "LIMIT {{limit}}",
			values:    map[string]string{"limit": ""},
			want:      "LIMIT ",
		},
		{
			name:      "unbalanced braces untouched",
			statement: "SELECT {{a}",
			values:    map[string]string{"a": "1"},
			want:      "SELECT {{a}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parameterize(tt.statement, params(tt.values)))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("SELECT {{ A }}, {{b}}, {{a}}")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestPlanQueries(t *testing.T) {
	nodes := []model.MetricNode{
		{ID: "n1", Statement: "SELECT {{freq}}", DatabaseConnectionID: "c1"},
		{ID: "n2", Statement: "", DatabaseConnectionID: "c1"},
		{ID: "n3", Statement: "SELECT 1"},
		{ID: "n4", Statement: "SELECT 2", DatabaseConnectionID: "c2"},
	}

	planned := PlanQueries(nodes, params(map[string]string{"freq": "DAY"}))

	assert.Equal(t, []PlannedQuery{
		{
			Node:      nodes[0],
			Signature: model.Signature{Statement: "SELECT DAY", DatabaseConnectionID: "c1", ParentNodeID: "n1"},
		},
		{
			Node:      nodes[3],
			Signature: model.Signature{Statement: "SELECT 2", DatabaseConnectionID: "c2", ParentNodeID: "n4"},
		},
	}, planned)
}
