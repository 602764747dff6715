package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server (trigger, manual runs, parameters).
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeOrchestrator runs orchestration passes on every UTC minute boundary.
	ServiceModeOrchestrator ServiceMode = "orchestrator"
	// ServiceModeReaper deletes old terminal runs.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeOrchestrator,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeOrchestrator, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, orchestrator, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OrchestratorConfig controls orchestration passes.
type OrchestratorConfig struct {
	// Concurrency bounds parallel initiations, reconciliations and per-job dispatches.
	Concurrency int `env:"CONCURRENCY" envDefault:"8"`

	// RunTimeout is how long a run may stay pending_notification before the sweep times it out.
	RunTimeout time.Duration `env:"RUN_TIMEOUT" envDefault:"3600s"`

	// LockTTL is how long a (job, fire minute) initiation lock is held in Redis.
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"2m"`

	// PassTimeout bounds a single orchestration pass.
	PassTimeout time.Duration `env:"PASS_TIMEOUT" envDefault:"55s"`

	// TickInterval is the cadence of the self-ticking runner. Passes align to the interval boundary.
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`

	// SweepBatchSize is the number of runs timed out per statement.
	SweepBatchSize int `env:"SWEEP_BATCH_SIZE" envDefault:"500"`

	// ReconcileLimit caps the pending runs reconciled per pass.
	ReconcileLimit int `env:"RECONCILE_LIMIT" envDefault:"500"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Concurrency > 64 {
		o.Concurrency = 64
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 3600 * time.Second
	}
	if o.LockTTL < time.Minute {
		o.LockTTL = time.Minute
	}
	if o.PassTimeout <= 0 {
		o.PassTimeout = 55 * time.Second
	}
	if o.TickInterval < time.Second {
		o.TickInterval = time.Minute
	}
	if o.SweepBatchSize < 1 {
		o.SweepBatchSize = 1
	}
	if o.ReconcileLimit < 1 {
		o.ReconcileLimit = 1
	}
}

// ReaperConfig contains run retention configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`

	// SuccessMaxAge is the maximum age for success runs before deletion.
	SuccessMaxAge time.Duration `env:"SUCCESS_MAX_AGE" envDefault:"720h"` // 30 days

	// ErrorMaxAge is the maximum age for error runs before deletion.
	ErrorMaxAge time.Duration `env:"ERROR_MAX_AGE" envDefault:"720h"` // 30 days

	// TimedOutMaxAge is the maximum age for notification_timed_out runs before deletion.
	TimedOutMaxAge time.Duration `env:"TIMED_OUT_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to delete per statement.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.SuccessMaxAge < 24*time.Hour {
		r.SuccessMaxAge = 24 * time.Hour
	}
	if r.ErrorMaxAge < 24*time.Hour {
		r.ErrorMaxAge = 24 * time.Hour
	}
	if r.TimedOutMaxAge < 24*time.Hour {
		r.TimedOutMaxAge = 24 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
