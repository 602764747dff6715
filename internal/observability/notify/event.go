// Package notify formats run notifications and defines the delivery sink contract.
package notify

import (
	"context"

	"github.com/target/refresh-orchestrator/internal/domain/model"
)

// Sink delivers a run notification to one channel. Sinks pick the targets they understand
// from the notification and ignore the rest.
type Sink interface {
	SendRunNotification(ctx context.Context, n model.RunNotification) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, n model.RunNotification) error

// SendRunNotification implements the Sink interface.
func (f SinkFunc) SendRunNotification(ctx context.Context, n model.RunNotification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}
