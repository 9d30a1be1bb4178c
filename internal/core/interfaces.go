// Package core defines the ports and shared engine primitives: repository
// interfaces, the cached definition catalog, the retry policy, and the keyed
// lock guarding parent completion.
package core

import (
	"context"
	"time"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// This file contains the interface definitions (ports in hexagonal
// architecture) consumed by the orchestration engine. Service code depends on
// these contracts, never on concrete store or broker implementations.

// JobRepository defines the persistence contract for jobs and job logs.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetChildren(ctx context.Context, parentJobID string) ([]*model.Job, error)
	GetRunningByOwnerAndDefinition(ctx context.Context, ownerID, jobDefinitionID string) ([]*model.Job, error)
	GetNonCompleted(ctx context.Context) ([]*model.Job, error)
	CreateLog(ctx context.Context, log *model.JobLog) error
	GetLogs(ctx context.Context, jobID string) ([]*model.JobLog, error)
	DeleteByOwner(ctx context.Context, params DeleteByOwnerParams) (int64, error)
}

// DeleteByOwnerParams groups the parameters for a bulk deletion request.
type DeleteByOwnerParams struct {
	OwnerID      string
	DeletionType string
}

// JobDefinitionRepository defines the persistence contract for job definitions.
type JobDefinitionRepository interface {
	GetAll(ctx context.Context) ([]*model.JobDefinition, error)
	GetByID(ctx context.Context, id string) (*model.JobDefinition, error)
	Save(ctx context.Context, definition *model.JobDefinition) error
}

// BrokerClient sends envelopes to named broker destinations.
type BrokerClient interface {
	SendToQueue(ctx context.Context, queue string, envelope *model.MessageEnvelope) error
	SendToTopic(ctx context.Context, topic string, envelope *model.MessageEnvelope) error
}

// NotificationSink accepts job notification projections for publication to
// external subscribers.
type NotificationSink interface {
	Publish(ctx context.Context, notification model.JobNotification) error
}

// CacheRepository defines the caching operations the engine relies on.
type CacheRepository interface {
	// Set stores a value with the given TTL; a zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value, returning nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only when absent. Returns true if
	// the key was set. This is the primitive behind the keyed lock.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
