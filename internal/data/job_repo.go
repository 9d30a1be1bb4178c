// Package data provides the PostgreSQL and Redis persistence implementations
// behind the engine's repository interfaces.
package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrDefinitionNotFound is returned when a job definition is not found.
	ErrDefinitionNotFound = errors.New("job definition not found")
)

// JobRepoConfig holds configuration options for the job repository.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for jobs and job logs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  job_definition_id,
  owner_id,
  parent_job_id,
  correlation_id,
  invoker_user_id,
  invoker_user_display_name,
  message_body,
  properties,
  item_count,
  trigger_message,
  trigger_entity_id,
  trigger_entity_type,
  running_status,
  completion_status,
  outcome,
  superseded_by_job_id,
  created_at,
  completed_at
`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job              model.Job
		properties       []byte
		completionStatus sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.JobDefinitionID,
		&job.OwnerID,
		&job.ParentJobID,
		&job.CorrelationID,
		&job.InvokerUserID,
		&job.InvokerUserDisplayName,
		&job.MessageBody,
		&properties,
		&job.ItemCount,
		&job.Trigger.Message,
		&job.Trigger.EntityID,
		&job.Trigger.EntityType,
		&job.RunningStatus,
		&completionStatus,
		&job.Outcome,
		&job.SupersededByJobID,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(properties) > 0 {
		if unmarshalErr := json.Unmarshal(properties, &job.Properties); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal job properties: %w", unmarshalErr)
		}
	}
	if completionStatus.Valid {
		status := model.CompletionStatus(completionStatus.String)
		job.CompletionStatus = &status
	}

	return &job, nil
}

func marshalProperties(properties map[string]string) ([]byte, error) {
	if len(properties) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("marshal job properties: %w", err)
	}
	return data, nil
}

func nullableCompletionStatus(status *model.CompletionStatus) any {
	if status == nil {
		return nil
	}
	return string(*status)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
