// Package model defines the core data types for the funding job orchestration engine.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// RunningStatus represents where a job currently sits in its lifecycle.
type RunningStatus string

// CompletionStatus represents the terminal outcome of a completed job.
type CompletionStatus string

const (
	// RunningStatusQueued indicates a job has been created but no worker has reported progress.
	RunningStatusQueued RunningStatus = "queued"
	// RunningStatusInProgress indicates a worker has reported at least one progress update.
	RunningStatusInProgress RunningStatus = "in_progress"
	// RunningStatusCompleting indicates all primary children finished and pre-completion
	// jobs have been injected; the parent may not complete until they finish too.
	RunningStatusCompleting RunningStatus = "completing"
	// RunningStatusCompleted indicates the job reached a terminal state.
	RunningStatusCompleted RunningStatus = "completed"

	// CompletionStatusSucceeded indicates the job finished successfully.
	CompletionStatusSucceeded CompletionStatus = "succeeded"
	// CompletionStatusFailed indicates the job finished with a failure.
	CompletionStatusFailed CompletionStatus = "failed"
	// CompletionStatusCancelled indicates the job was cancelled before finishing.
	CompletionStatusCancelled CompletionStatus = "cancelled"
	// CompletionStatusTimedOut indicates the job exceeded its definition's timeout.
	CompletionStatusTimedOut CompletionStatus = "timed_out"
	// CompletionStatusSuperseded indicates a newer job of the same type and owner replaced it.
	CompletionStatusSuperseded CompletionStatus = "superseded"
)

// Valid returns true if the RunningStatus is one of the known lifecycle states.
func (s RunningStatus) Valid() bool {
	switch s {
	case RunningStatusQueued, RunningStatusInProgress, RunningStatusCompleting, RunningStatusCompleted:
		return true
	}
	return false
}

// Valid returns true if the CompletionStatus is one of the known terminal outcomes.
func (s CompletionStatus) Valid() bool {
	switch s {
	case CompletionStatusSucceeded, CompletionStatusFailed, CompletionStatusCancelled,
		CompletionStatusTimedOut, CompletionStatusSuperseded:
		return true
	}
	return false
}

// completionPriority orders terminal statuses for parent aggregation.
// The first status found among a parent's children wins.
var completionPriority = []CompletionStatus{
	CompletionStatusTimedOut,
	CompletionStatusCancelled,
	CompletionStatusSuperseded,
	CompletionStatusFailed,
	CompletionStatusSucceeded,
}

// Trigger describes what caused a job to be created.
type Trigger struct {
	Message    string `json:"message,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

// UserRef identifies the user (or system identity) that invoked an operation.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Job represents one schedulable unit of asynchronous work tracked by the engine.
//
// CompletionStatus is non-nil iff RunningStatus is completed; it is set exactly
// once, at the same moment RunningStatus transitions to completed, and never
// overwritten afterward.
type Job struct {
	ID                     string            `json:"id"                             db:"id"`
	JobDefinitionID        string            `json:"job_definition_id"              db:"job_definition_id"`
	OwnerID                string            `json:"owner_id"                       db:"owner_id"`
	ParentJobID            *string           `json:"parent_job_id,omitempty"        db:"parent_job_id"`
	CorrelationID          string            `json:"correlation_id"                 db:"correlation_id"`
	InvokerUserID          string            `json:"invoker_user_id"                db:"invoker_user_id"`
	InvokerUserDisplayName string            `json:"invoker_user_display_name"      db:"invoker_user_display_name"`
	MessageBody            json.RawMessage   `json:"message_body,omitempty"         db:"message_body"`
	Properties             map[string]string `json:"properties,omitempty"           db:"properties"`
	ItemCount              *int              `json:"item_count,omitempty"           db:"item_count"`
	Trigger                Trigger           `json:"trigger"                        db:"trigger"`
	RunningStatus          RunningStatus     `json:"running_status"                 db:"running_status"`
	CompletionStatus       *CompletionStatus `json:"completion_status,omitempty"    db:"completion_status"`
	Outcome                *string           `json:"outcome,omitempty"              db:"outcome"`
	SupersededByJobID      *string           `json:"superseded_by_job_id,omitempty" db:"superseded_by_job_id"`
	CreatedAt              time.Time         `json:"created_at"                     db:"created_at"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty"         db:"completed_at"`
}

// IsComplete returns true once the job has reached its terminal state.
func (j *Job) IsComplete() bool {
	return j.RunningStatus == RunningStatusCompleted
}

// Complete transitions the job to its terminal state. It is a no-op returning
// false when the job already completed, preserving the set-exactly-once
// invariant on CompletionStatus.
func (j *Job) Complete(status CompletionStatus, outcome string, at time.Time) bool {
	if j.IsComplete() {
		return false
	}
	j.RunningStatus = RunningStatusCompleted
	j.CompletionStatus = &status
	if outcome != "" {
		j.Outcome = &outcome
	}
	j.CompletedAt = &at
	return true
}

// CanBeSupersededBy reports whether replacement may supersede this job.
// A job never supersedes itself, and a job never supersedes a sibling sharing
// its own parent: supersession is only valid between jobs with different ids
// where at least one has no parent, or their parent ids differ.
func (j *Job) CanBeSupersededBy(replacement *Job) bool {
	if replacement == nil || j.ID == replacement.ID {
		return false
	}
	if j.ParentJobID == nil || replacement.ParentJobID == nil {
		return true
	}
	return *j.ParentJobID != *replacement.ParentJobID
}

// AggregateCompletionStatus derives a parent's terminal status from its
// children by priority: timed_out > cancelled > superseded > failed > succeeded.
// It returns false when any child has not yet recorded a completion status,
// in which case the parent cannot complete.
func AggregateCompletionStatus(children []*Job) (CompletionStatus, bool) {
	for _, child := range children {
		if child.CompletionStatus == nil {
			return "", false
		}
	}
	for _, status := range completionPriority {
		for _, child := range children {
			if *child.CompletionStatus == status {
				return status, true
			}
		}
	}
	return "", false
}

// CreateJobRequest represents one entry in a CreateJobs batch.
type CreateJobRequest struct {
	JobDefinitionID        string            `json:"job_definition_id"`
	OwnerID                string            `json:"owner_id"`
	ParentJobID            *string           `json:"parent_job_id,omitempty"`
	CorrelationID          string            `json:"correlation_id,omitempty"`
	InvokerUserID          string            `json:"invoker_user_id,omitempty"`
	InvokerUserDisplayName string            `json:"invoker_user_display_name,omitempty"`
	MessageBody            json.RawMessage   `json:"message_body,omitempty"`
	Properties             map[string]string `json:"properties,omitempty"`
	ItemCount              *int              `json:"item_count,omitempty"`
	Trigger                Trigger           `json:"trigger"`
}

// Validate checks the request fields that do not depend on the job definition.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.JobDefinitionID) == "" {
		return errors.New("job definition id is required")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	return nil
}

// ValidationFailure describes one rejected entry of a CreateJobs batch.
type ValidationFailure struct {
	RequestIndex    int    `json:"request_index"`
	JobDefinitionID string `json:"job_definition_id,omitempty"`
	Message         string `json:"message"`
}
