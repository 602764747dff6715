package model

import "time"

// RunOutcome is the kind of event a run notification reports.
type RunOutcome string

const (
	RunOutcomeRefreshed RunOutcome = "refreshed"
	RunOutcomeTimedOut  RunOutcome = "timed_out"
)

// RunNotification carries what a notifier needs to tell stakeholders about a run.
type RunNotification struct {
	RunID            string
	RefreshJobID     string
	OrganizationID   string
	OrganizationName string
	Outcome          RunOutcome
	Targets          NotificationTargets
	OccurredAt       time.Time
}
