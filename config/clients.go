package config

import (
	"strings"
	"time"
)

// DefaultGraphPath is the graph service route for one organization.
const DefaultGraphPath = "/api/v1/graphs/{organizationID}"

// DefaultNodesExpression extracts query-bearing nodes from a payload shaped like
// {"graph": {"nodes": [{"id": ..., "data": {"source": {"query": ..., "databaseConnectionId": ...}}}]}}.
const DefaultNodesExpression = "graph.nodes[?data.source.query].{id: id, statement: data.source.query, " +
	"database_connection_id: data.source.databaseConnectionId}"

// GraphServiceConfig configures the client that loads an organization's node graph.
type GraphServiceConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8081"`
	// PathTemplate is joined to BaseURL with {organizationID} replaced.
	PathTemplate string `env:"PATH_TEMPLATE" envDefault:"/api/v1/graphs/{organizationID}"`
	// NodesExpression is a JMESPath expression selecting nodes from the response body.
	NodesExpression string        `env:"NODES_EXPRESSION"`
	Timeout         time.Duration `env:"TIMEOUT"          envDefault:"15s"`
}

// Sanitize applies defaults to graph client values.
func (c *GraphServiceConfig) Sanitize() {
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if strings.TrimSpace(c.NodesExpression) == "" {
		c.NodesExpression = DefaultNodesExpression
	}
	if !strings.Contains(c.PathTemplate, "{organizationID}") {
		c.PathTemplate = DefaultGraphPath
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// QueryServiceConfig configures the client for the query execution service.
type QueryServiceConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8082"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"15s"`
}

// Sanitize applies defaults to query client values.
func (c *QueryServiceConfig) Sanitize() {
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}
