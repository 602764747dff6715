package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// RefreshJobBuilder builds refresh job rows for integration tests.
type RefreshJobBuilder struct {
	job model.RefreshJob
}

// NewRefreshJob starts a builder for an every-minute job owned by organizationID.
func NewRefreshJob(organizationID string) *RefreshJobBuilder {
	return &RefreshJobBuilder{job: model.RefreshJob{
		OrganizationID: organizationID,
		Schedule:       "* * * * *",
		EmailTo:        []string{},
		SlackTo:        []string{},
	}}
}

// WithSchedule sets the cron expression.
func (b *RefreshJobBuilder) WithSchedule(schedule string) *RefreshJobBuilder {
	b.job.Schedule = schedule
	return b
}

// WithEmail adds email recipients.
func (b *RefreshJobBuilder) WithEmail(to ...string) *RefreshJobBuilder {
	b.job.EmailTo = append(b.job.EmailTo, to...)
	return b
}

// WithSlack adds Slack webhook targets.
func (b *RefreshJobBuilder) WithSlack(to ...string) *RefreshJobBuilder {
	b.job.SlackTo = append(b.job.SlackTo, to...)
	return b
}

// Deleted marks the job as soft-deleted.
func (b *RefreshJobBuilder) Deleted(at time.Time) *RefreshJobBuilder {
	b.job.DeletedAt = &at
	return b
}

// Insert writes the job and returns its generated id.
func (b *RefreshJobBuilder) Insert(t TestingTB, db *sql.DB) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO refresh_jobs (organization_id, schedule, email_to, slack_to, deleted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		b.job.OrganizationID, b.job.Schedule, b.job.EmailTo, b.job.SlackTo, b.job.DeletedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert refresh job: %v", err)
	}
	return id
}

// InsertOrganization creates an organization and returns its id.
func InsertOrganization(t TestingTB, db *sql.DB, name string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	if err := db.QueryRowContext(ctx, "INSERT INTO organizations (name) VALUES ($1) RETURNING id", name).Scan(&id); err != nil {
		t.Fatalf("Failed to insert organization: %v", err)
	}
	return id
}

// InsertExecution records a query execution the way the query execution service would.
func InsertExecution(t TestingTB, db *sql.DB, sig model.Signature, createdAt time.Time) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO database_queries (statement, database_connection_id, parent_node_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		sig.Statement, sig.DatabaseConnectionID, sig.ParentNodeID, createdAt.UTC(),
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert query execution: %v", err)
	}
	return id
}
