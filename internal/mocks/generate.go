// Package mocks provides mock implementations for testing the refresh orchestration services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	runs := mocks.NewMockRunRepository(ctrl)
//	runs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(run, nil)
package mocks

// Generate mock for RunRepository interface from internal/core package.
// This creates MockRunRepository with methods for all RunRepository interface methods:
// Create, GetByID, ListPending, Transition, TimeoutStale
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=run_repository_mock.go github.com/target/refresh-orchestrator/internal/core RunRepository

// Generate mock for QueryService interface from internal/core package.
// This creates MockQueryService with methods for all QueryService interface methods:
// Dispatch, Status
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=query_service_mock.go github.com/target/refresh-orchestrator/internal/core QueryService
