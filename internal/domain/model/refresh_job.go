// Package model defines the core data types shared by the refresh orchestration engine.
package model

import (
	"strings"
	"time"
)

// RefreshJob is a cron-scheduled recomputation of an organization's metric graph.
// Jobs are owned by organization admins; the engine only reads them.
type RefreshJob struct {
	ID             string     `json:"id"                   db:"id"`
	OrganizationID string     `json:"organization_id"      db:"organization_id"`
	Schedule       string     `json:"schedule"             db:"schedule"`
	EmailTo        []string   `json:"email_to"             db:"email_to"`
	SlackTo        []string   `json:"slack_to"             db:"slack_to"`
	CreatedAt      time.Time  `json:"created_at"           db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"           db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Active reports whether the job has not been soft-deleted.
func (j *RefreshJob) Active() bool {
	return j != nil && j.DeletedAt == nil
}

// HasNotificationTargets reports whether anyone should hear about the job's runs.
// Blank entries do not count as targets.
func (j *RefreshJob) HasNotificationTargets() bool {
	if j == nil {
		return false
	}
	return len(nonBlank(j.EmailTo)) > 0 || len(nonBlank(j.SlackTo)) > 0
}

// Targets returns the job's notification targets with blank entries removed.
func (j *RefreshJob) Targets() NotificationTargets {
	if j == nil {
		return NotificationTargets{}
	}
	return NotificationTargets{
		Emails:        nonBlank(j.EmailTo),
		SlackWebhooks: nonBlank(j.SlackTo),
	}
}

// NotificationTargets lists where run notifications are delivered.
type NotificationTargets struct {
	Emails        []string `json:"emails,omitempty"`
	SlackWebhooks []string `json:"slack_webhooks,omitempty"`
}

// Empty reports whether no targets are configured.
func (t NotificationTargets) Empty() bool {
	return len(t.Emails) == 0 && len(t.SlackWebhooks) == 0
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Organization owns refresh jobs, query parameters and a metric graph.
type Organization struct {
	ID        string     `json:"id"                   db:"id"`
	Name      string     `json:"name"                 db:"name"`
	CreatedAt time.Time  `json:"created_at"           db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
