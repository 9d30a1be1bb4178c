// Package mocks provides mock implementations for testing the orchestration engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// engine's port interfaces. The mocks are generated using go:generate directives
// and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/fundingcalc/jobs-engine/internal/core JobRepository

// Generate mock for JobDefinitionRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_definition_repository_mock.go github.com/fundingcalc/jobs-engine/internal/core JobDefinitionRepository

// Generate mock for BrokerClient interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=broker_client_mock.go github.com/fundingcalc/jobs-engine/internal/core BrokerClient

// Generate mock for NotificationSink interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=notification_sink_mock.go github.com/fundingcalc/jobs-engine/internal/core NotificationSink

// Generate mock for CacheRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/fundingcalc/jobs-engine/internal/core CacheRepository
