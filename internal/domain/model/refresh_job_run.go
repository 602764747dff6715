package model

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a RefreshJobRun.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RunStatus string

const (
	// RunStatusPendingNotification means the run waits for its queries to finish before notifying.
	RunStatusPendingNotification RunStatus = "pending_notification"
	// RunStatusSuccess means every query finished (or nobody needed to be notified).
	RunStatusSuccess RunStatus = "success"
	// RunStatusError means initiation failed before the run could be tracked.
	RunStatusError RunStatus = "error"
	// RunStatusNotificationTimedOut means the run stayed pending past the timeout.
	RunStatusNotificationTimedOut RunStatus = "notification_timed_out"
)

// DefaultRunTimeout is how long a run may stay pending_notification.
const DefaultRunTimeout = 3600 * time.Second

// Valid returns true if the status is one of the known run states.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPendingNotification, RunStatusSuccess, RunStatusError, RunStatusNotificationTimedOut:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of the status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError || s == RunStatusNotificationTimedOut
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses can be parsed from query strings.
func (s *RunStatus) UnmarshalText(text []byte) error {
	v := RunStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid RunStatus: %q", v)
	}
	*s = v
	return nil
}

// CanTransition reports whether a run may move from one status to another.
// Only pending_notification has outgoing edges; every other state is terminal.
func CanTransition(from, to RunStatus) bool {
	if from != RunStatusPendingNotification {
		return false
	}
	return to == RunStatusSuccess || to == RunStatusNotificationTimedOut
}

// InitialRunStatus picks the status a freshly initiated run starts in.
func InitialRunStatus(job *RefreshJob, initErr error) RunStatus {
	switch {
	case initErr != nil:
		return RunStatusError
	case job.HasNotificationTargets():
		return RunStatusPendingNotification
	default:
		return RunStatusSuccess
	}
}

// RefreshJobRun is one initiation of a refresh job.
type RefreshJobRun struct {
	ID           string    `json:"id"                 db:"id"`
	RefreshJobID string    `json:"refresh_job_id"     db:"refresh_job_id"`
	Status       RunStatus `json:"status"             db:"status"`
	FireKey      *string   `json:"fire_key,omitempty" db:"fire_key"`
	CreatedAt    time.Time `json:"created_at"         db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"         db:"updated_at"`
}

// Age returns how long the run has existed at the given instant.
func (r *RefreshJobRun) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// CreateRunRequest describes a run to persist.
// FireKey is empty for manual initiations.
type CreateRunRequest struct {
	RefreshJobID string
	Status       RunStatus
	FireKey      string
}

// Validate checks the request before it reaches the store.
func (r CreateRunRequest) Validate() error {
	if strings.TrimSpace(r.RefreshJobID) == "" {
		return fmt.Errorf("refresh_job_id is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	return nil
}

// RunTransition is a conditional status change: it applies only while the run is still in From.
type RunTransition struct {
	RunID string
	From  RunStatus
	To    RunStatus
	At    time.Time
}

// Validate rejects transitions the state machine does not allow.
func (t RunTransition) Validate() error {
	if strings.TrimSpace(t.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("transition %s -> %s is not allowed", t.From, t.To)
	}
	return nil
}
