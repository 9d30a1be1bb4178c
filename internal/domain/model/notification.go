package model

import "time"

// Message property names carried on broker envelopes.
const (
	// PropertyJobID is set on every engine-produced message and is required
	// on inbound job notification messages.
	PropertyJobID = "jobId"
	// PropertyCorrelationID carries the correlation id across services.
	PropertyCorrelationID = "sfa-correlationId"
	// PropertyOwnerID scopes bulk deletion messages to one owning entity.
	PropertyOwnerID = "owner-id"
	// PropertyDeletionType tags bulk deletion messages (soft or permanent).
	PropertyDeletionType = "deletion-type"
)

// JobNotification is the read-only projection of a job published to external
// subscribers whenever its lifecycle changes. When emitted from a log update
// it also carries that log's cumulative counters.
type JobNotification struct {
	JobID                  string            `json:"job_id"`
	JobType                string            `json:"job_type"`
	OwnerID                string            `json:"owner_id"`
	ParentJobID            *string           `json:"parent_job_id,omitempty"`
	CorrelationID          string            `json:"correlation_id,omitempty"`
	InvokerUserID          string            `json:"invoker_user_id,omitempty"`
	InvokerUserDisplayName string            `json:"invoker_user_display_name,omitempty"`
	RunningStatus          RunningStatus     `json:"running_status"`
	CompletionStatus       *CompletionStatus `json:"completion_status,omitempty"`
	Outcome                *string           `json:"outcome,omitempty"`
	SupersededByJobID      *string           `json:"superseded_by_job_id,omitempty"`
	Trigger                Trigger           `json:"trigger"`
	ItemCount              *int              `json:"item_count,omitempty"`
	ItemsProcessed         *int              `json:"items_processed,omitempty"`
	ItemsSucceeded         *int              `json:"items_succeeded,omitempty"`
	ItemsFailed            *int              `json:"items_failed,omitempty"`
	StatusDateTime         time.Time         `json:"status_date_time"`
}

// NotificationFromJob projects a job into its notification form.
func NotificationFromJob(job *Job) JobNotification {
	statusTime := job.CreatedAt
	if job.CompletedAt != nil {
		statusTime = *job.CompletedAt
	}

	return JobNotification{
		JobID:                  job.ID,
		JobType:                job.JobDefinitionID,
		OwnerID:                job.OwnerID,
		ParentJobID:            job.ParentJobID,
		CorrelationID:          job.CorrelationID,
		InvokerUserID:          job.InvokerUserID,
		InvokerUserDisplayName: job.InvokerUserDisplayName,
		RunningStatus:          job.RunningStatus,
		CompletionStatus:       job.CompletionStatus,
		Outcome:                job.Outcome,
		SupersededByJobID:      job.SupersededByJobID,
		Trigger:                job.Trigger,
		ItemCount:              job.ItemCount,
		StatusDateTime:         statusTime,
	}
}

// NotificationFromJobLog projects a job and the log that just mutated it.
func NotificationFromJobLog(job *Job, log *JobLog) JobNotification {
	n := NotificationFromJob(job)
	if log != nil {
		n.ItemsProcessed = log.ItemsProcessed
		n.ItemsSucceeded = log.ItemsSucceeded
		n.ItemsFailed = log.ItemsFailed
		n.Outcome = log.Outcome
		n.StatusDateTime = log.Timestamp
	}
	return n
}

// MessageEnvelope is the typed wrapper around every broker message: an opaque
// payload plus the engine's bookkeeping metadata. Properties never shadow the
// named fields; SeedProperty only fills keys the producer has not already set.
type MessageEnvelope struct {
	Body          []byte            `json:"body,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	SessionKey    string            `json:"session_key,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// SeedProperty sets key to value unless the producer already supplied it.
func (e *MessageEnvelope) SeedProperty(key, value string) {
	if e.Properties == nil {
		e.Properties = make(map[string]string)
	}
	if _, ok := e.Properties[key]; !ok {
		e.Properties[key] = value
	}
}

// Property returns the named property and whether it was present.
func (e *MessageEnvelope) Property(key string) (string, bool) {
	v, ok := e.Properties[key]
	return v, ok
}
