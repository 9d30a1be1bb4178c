package model

import "time"

// JobLog is one append-only progress or completion report for a job.
// The latest log carrying CompletedSuccessfully drives the job's completion.
type JobLog struct {
	ID                    string    `json:"id"                               db:"id"`
	JobID                 string    `json:"job_id"                           db:"job_id"`
	ItemsProcessed        *int      `json:"items_processed,omitempty"        db:"items_processed"`
	ItemsSucceeded        *int      `json:"items_succeeded,omitempty"        db:"items_succeeded"`
	ItemsFailed           *int      `json:"items_failed,omitempty"           db:"items_failed"`
	Outcome               *string   `json:"outcome,omitempty"                db:"outcome"`
	CompletedSuccessfully *bool     `json:"completed_successfully,omitempty" db:"completed_successfully"`
	Timestamp             time.Time `json:"timestamp"                        db:"timestamp"`
}

// JobLogUpdate is a worker's report against a running job.
// A non-nil CompletedSuccessfully marks the report as terminal.
type JobLogUpdate struct {
	ItemsProcessed        *int    `json:"items_processed,omitempty"`
	ItemsSucceeded        *int    `json:"items_succeeded,omitempty"`
	ItemsFailed           *int    `json:"items_failed,omitempty"`
	Outcome               *string `json:"outcome,omitempty"`
	CompletedSuccessfully *bool   `json:"completed_successfully,omitempty"`
}

// IsTerminal returns true when the update reports final success or failure.
func (u *JobLogUpdate) IsTerminal() bool {
	return u.CompletedSuccessfully != nil
}
