package model

import (
	"errors"
	"strings"
	"time"
)

// DestinationKind distinguishes the broker destination a job is dispatched to.
type DestinationKind string

const (
	// DestinationQueue routes messages to a single competing consumer group.
	DestinationQueue DestinationKind = "queue"
	// DestinationTopic fans messages out to every subscriber.
	DestinationTopic DestinationKind = "topic"
	// DestinationNone marks parent-only definitions with no worker consumer.
	DestinationNone DestinationKind = "none"
)

// JobDefinition holds the immutable metadata for one job type.
//
// A definition declares either a queue or a topic destination, never both.
// Definitions with neither are parent-only: their jobs exist purely to
// aggregate children and are never dispatched.
type JobDefinition struct {
	ID string `json:"id" db:"id"`

	// Timeout is the wall-clock age after which the sweep marks a job timed out.
	Timeout time.Duration `json:"timeout" db:"timeout"`

	// SupersedeExistingRunningJobOnEnqueue marks older running jobs of this
	// type for the same owner as superseded when a new job is created.
	SupersedeExistingRunningJobOnEnqueue bool `json:"supersede_existing_running_job_on_enqueue" db:"supersede_on_enqueue"`

	// PreCompletionJobDefinitionIDs lists job types injected as children of a
	// parent of this type once its primary children complete, before the
	// parent itself may finish.
	PreCompletionJobDefinitionIDs []string `json:"pre_completion_job_definition_ids,omitempty" db:"pre_completion_job_definition_ids"`

	QueueName string `json:"queue_name,omitempty" db:"queue_name"`
	TopicName string `json:"topic_name,omitempty" db:"topic_name"`

	// SessionPropertyName names the request property carried as the broker
	// session-affinity key. When set, every create request must supply it.
	SessionPropertyName string `json:"session_property_name,omitempty" db:"session_property_name"`

	// RequiredBodyPaths holds JMESPath expressions that must resolve to a
	// value in the request's JSON message body.
	RequiredBodyPaths []string `json:"required_body_paths,omitempty" db:"required_body_paths"`
}

// Validate checks the definition before it is saved to the catalog.
func (d *JobDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("definition id is required")
	}
	if d.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if d.QueueName != "" && d.TopicName != "" {
		return errors.New("definition must declare a queue or a topic, not both")
	}
	return nil
}

// Destination resolves the broker destination for jobs of this type.
// Queue takes precedence over topic when both are somehow configured.
func (d *JobDefinition) Destination() (string, DestinationKind) {
	if d.QueueName != "" {
		return d.QueueName, DestinationQueue
	}
	if d.TopicName != "" {
		return d.TopicName, DestinationTopic
	}
	return "", DestinationNone
}

// IsParentOnly returns true when jobs of this type have no worker consumer.
func (d *JobDefinition) IsParentOnly() bool {
	_, kind := d.Destination()
	return kind == DestinationNone
}

// RequiresSessionProperty returns true when create requests must carry the
// session-affinity property.
func (d *JobDefinition) RequiresSessionProperty() bool {
	return d.SessionPropertyName != ""
}
