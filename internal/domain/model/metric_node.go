package model

import (
	"strings"
	"time"
)

// MetricNode is a node of an organization's graph as reported by the graph service.
type MetricNode struct {
	ID                   string `json:"id"`
	Statement            string `json:"statement"`
	DatabaseConnectionID string `json:"database_connection_id"`
}

// Qualifies reports whether the node carries a query that can be refreshed.
func (n MetricNode) Qualifies() bool {
	return strings.TrimSpace(n.Statement) != "" && strings.TrimSpace(n.DatabaseConnectionID) != ""
}

// Signature identifies a query execution by what was run, where, and for which node.
// The statement is always the parameterized form.
type Signature struct {
	Statement            string `json:"statement"`
	DatabaseConnectionID string `json:"database_connection_id"`
	ParentNodeID         string `json:"parent_node_id"`
}

// ExecutionStatus is the state reported by the query execution service.
type ExecutionStatus string

const (
	ExecutionRunning  ExecutionStatus = "running"
	ExecutionFinished ExecutionStatus = "finished"
	ExecutionFailed   ExecutionStatus = "failed"
)

// Done reports whether the execution no longer needs to be waited on.
// Failed executions count as done.
func (s ExecutionStatus) Done() bool {
	return s == ExecutionFinished || s == ExecutionFailed
}

// QueryExecution is a query run recorded by the query execution service.
type QueryExecution struct {
	ID                   string     `json:"id"                     db:"id"`
	Statement            string     `json:"statement"              db:"statement"`
	DatabaseConnectionID string     `json:"database_connection_id" db:"database_connection_id"`
	ParentNodeID         string     `json:"parent_node_id"         db:"parent_node_id"`
	CreatedAt            time.Time  `json:"created_at"             db:"created_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"   db:"deleted_at"`
}

// Signature returns the execution's idempotency key.
func (q *QueryExecution) Signature() Signature {
	return Signature{
		Statement:            q.Statement,
		DatabaseConnectionID: q.DatabaseConnectionID,
		ParentNodeID:         q.ParentNodeID,
	}
}
