package core

import (
	"context"
	"time"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// GraphService loads an organization's node graph.
type GraphService interface {
	GetNodes(ctx context.Context, organizationID string) ([]model.MetricNode, error)
}

// QueryService submits queries to the query execution service and polls them.
type QueryService interface {
	// Dispatch submits a parameterized statement and returns the new execution id.
	Dispatch(ctx context.Context, sig model.Signature) (string, error)
	// Status reports whether the execution is running, finished or failed.
	Status(ctx context.Context, executionID string) (model.ExecutionStatus, error)
}

// RunNotifier hands run outcomes to the delivery channels. Delivery is best effort.
type RunNotifier interface {
	NotifyRun(ctx context.Context, n model.RunNotification)
}

// FireLocker grants at most one holder per key until the TTL expires.
type FireLocker interface {
	// Acquire reports whether the caller obtained the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// TimeProvider supplies the current time so passes can be replayed in tests.
type TimeProvider interface {
	Now() time.Time
}

// TriggerVerifier authenticates the external scheduler from a bearer token.
type TriggerVerifier interface {
	Verify(ctx context.Context, rawToken string) (model.Caller, error)
}
