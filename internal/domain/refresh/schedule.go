package refresh

import (
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// maxLookback bounds the backward search for the previous fire time.
// Schedules that fire less often than this (e.g. Feb 29) report no previous fire.
const maxLookback = 8 * 366 * 24 * time.Hour

// Schedule is a parsed five-field cron expression evaluated in UTC unless it carries a TZ= prefix.
type Schedule struct {
	expr string
	spec *cronlib.SpecSchedule
}

// ParseSchedule validates a cron expression. Interval descriptors such as "@every 5m" are
// rejected because they are not anchored to wall-clock minutes.
func ParseSchedule(expr string) (*Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, apperrors.ValidationField("schedule", "schedule is required")
	}

	parsed, err := cronParser.Parse(trimmed)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid cron schedule %q", trimmed)
	}

	spec, ok := parsed.(*cronlib.SpecSchedule)
	if !ok {
		return nil, apperrors.Validationf("cron schedule %q is not anchored to wall-clock time", trimmed)
	}
	if !hasTZPrefix(trimmed) {
		spec.Location = time.UTC
	}

	return &Schedule{expr: trimmed, spec: spec}, nil
}

func hasTZPrefix(expr string) bool {
	return strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=")
}

// String returns the normalized expression.
func (s *Schedule) String() string {
	return s.expr
}

// Next returns the first fire time strictly after t, or the zero time if there is none.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.spec.Next(t).UTC()
}

// Prev returns the latest fire time at or before t, or the zero time if none exists
// within the lookback horizon.
func (s *Schedule) Prev(t time.Time) time.Time {
	t = t.UTC()
	for lookback := time.Minute; ; lookback *= 2 {
		if lookback > maxLookback {
			lookback = maxLookback
		}
		lo := t.Add(-lookback).Truncate(time.Second)
		if f := s.atOrAfter(lo); !f.IsZero() && !f.After(t) {
			return s.narrow(lo, t)
		}
		if lookback == maxLookback {
			return time.Time{}
		}
	}
}

// narrow bisects [lo, t] down to the last fire time, given that one exists in it.
// Fire times are whole seconds, so the search stops at one-second resolution.
func (s *Schedule) narrow(lo, t time.Time) time.Time {
	hi := t.Truncate(time.Second).Add(time.Second)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if f := s.atOrAfter(mid); !f.IsZero() && !f.After(t) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return s.atOrAfter(lo)
}

// atOrAfter returns the first fire time >= t for a whole-second t.
func (s *Schedule) atOrAfter(t time.Time) time.Time {
	return s.spec.Next(t.Add(-time.Second)).UTC()
}

// MinuteWindow returns [floor(now, 1m), floor(now, 1m)+1m) in UTC.
func MinuteWindow(now time.Time) (time.Time, time.Time) {
	start := now.UTC().Truncate(time.Minute)
	return start, start.Add(time.Minute)
}

// DueCheck is the outcome of evaluating a schedule against the current minute.
type DueCheck struct {
	Due    bool
	FireAt time.Time
	Next   time.Time
	Prev   time.Time
}

// FireKey identifies the fire instant for idempotent initiation.
func (d DueCheck) FireKey() string {
	if !d.Due {
		return ""
	}
	return d.FireAt.UTC().Format("2006-01-02T15:04Z")
}

// CheckDue reports whether the schedule fires inside the minute window containing now.
// Both the next and the previous fire time are checked so a pass that runs slightly
// late or early around the minute boundary still sees the fire instant.
func (s *Schedule) CheckDue(now time.Time) DueCheck {
	start, end := MinuteWindow(now)
	check := DueCheck{
		Next: s.Next(now),
		Prev: s.Prev(now),
	}

	switch {
	case inWindow(check.Prev, start, end):
		check.Due = true
		check.FireAt = check.Prev
	case inWindow(check.Next, start, end):
		check.Due = true
		check.FireAt = check.Next
	}
	return check
}

func inWindow(t, start, end time.Time) bool {
	return !t.IsZero() && !t.Before(start) && t.Before(end)
}

// IsDue parses expr and checks it against now. Invalid expressions return a validation error.
func IsDue(expr string, now time.Time) (DueCheck, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return DueCheck{}, err
	}
	return sched.CheckDue(now), nil
}

// MustParseSchedule is ParseSchedule for expressions known to be valid.
func MustParseSchedule(expr string) *Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(fmt.Sprintf("refresh: %v", err))
	}
	return s
}
