package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
)

// completedChildrenOutcome is recorded on parents completed by aggregation.
const completedChildrenOutcome = "All child jobs completed"

// ProcessJobNotification handles an inbound job notification message and, for
// completed children, evaluates whether their parent can now complete.
//
// Envelope contract: JSON-serialized JobNotification body plus a jobId
// property. A message without the property is logged and dropped without
// error so the broker does not redeliver it.
func (o *Orchestrator) ProcessJobNotification(ctx context.Context, envelope *model.MessageEnvelope) error {
	if envelope == nil {
		return errors.New("envelope is required")
	}

	jobID, ok := envelope.Property(model.PropertyJobID)
	if !ok || jobID == "" {
		if o.logger != nil {
			o.logger.WarnContext(ctx, "dropping job notification without jobId property")
		}
		return nil
	}

	var notification model.JobNotification
	if err := json.Unmarshal(envelope.Body, &notification); err != nil {
		return fmt.Errorf("unmarshal job notification %s: %w", jobID, err)
	}

	if notification.RunningStatus != model.RunningStatusCompleted {
		return nil
	}
	if notification.ParentJobID == nil || *notification.ParentJobID == "" {
		if o.logger != nil {
			o.logger.DebugContext(ctx, "completed job has no parent, nothing to aggregate",
				"job_id", jobID)
		}
		return nil
	}

	return o.evaluateParentCompletion(ctx, *notification.ParentJobID, notification)
}

// evaluateParentCompletion completes (or advances to completing) a parent
// once every child has completed. The critical section is serialized per
// parent id so two children finishing concurrently cannot double-complete it.
func (o *Orchestrator) evaluateParentCompletion(
	ctx context.Context,
	parentJobID string,
	trigger model.JobNotification,
) error {
	children, err := o.loadChildren(ctx, parentJobID)
	if err != nil {
		return err
	}
	if !allCompleted(children) {
		return nil
	}

	release, err := o.completionLock.Acquire(ctx, parentJobID)
	if err != nil {
		return fmt.Errorf("acquire completion lock for parent %s: %w", parentJobID, err)
	}
	defer release()

	// Reload inside the lock: another child's notification may have already
	// advanced or completed the parent.
	parent, err := o.loadJob(ctx, parentJobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			if o.logger != nil {
				o.logger.WarnContext(ctx, "parent job not found during completion",
					"parent_job_id", parentJobID, "child_job_id", trigger.JobID)
			}
			return nil
		}
		return err
	}
	if parent.IsComplete() {
		return nil
	}

	definition, err := o.catalog.GetByID(ctx, parent.JobDefinitionID)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to load definition %s for parent %s", parent.JobDefinitionID, parent.ID)
	}

	if len(definition.PreCompletionJobDefinitionIDs) > 0 &&
		parent.RunningStatus != model.RunningStatusCompleting {
		return o.injectPreCompletionJobs(ctx, parent, definition)
	}

	// Children loaded before the lock are still authoritative here: a new
	// child can only appear via pre-completion injection, which this lock
	// serializes, and that path flips the parent to completing first.
	children, err = o.loadChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	status, ok := model.AggregateCompletionStatus(children)
	if !ok {
		return nil
	}

	now := o.timeProvider.Now()
	if !parent.Complete(status, completedChildrenOutcome, now) {
		return nil
	}
	if err := o.retry.Execute(ctx, "complete parent job", func(ctx context.Context) error {
		return o.repo.Update(ctx, parent)
	}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to complete parent job %s", parent.ID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "parent job completed from children",
			"parent_job_id", parent.ID,
			"completion_status", status,
		)
	}
	metrics.EmitJobCompleted(o.metrics, status)

	// This notification may in turn complete a grandparent when it re-enters
	// through the broker.
	return o.publisher.PublishJob(ctx, parent)
}

// injectPreCompletionJobs creates the definition's pre-completion chain as new
// children of the parent and moves the parent to completing, so the chain is
// injected exactly once.
func (o *Orchestrator) injectPreCompletionJobs(
	ctx context.Context,
	parent *model.Job,
	definition *model.JobDefinition,
) error {
	requests := make([]model.CreateJobRequest, 0, len(definition.PreCompletionJobDefinitionIDs))
	for _, definitionID := range definition.PreCompletionJobDefinitionIDs {
		requests = append(requests, model.CreateJobRequest{
			JobDefinitionID:        definitionID,
			OwnerID:                parent.OwnerID,
			ParentJobID:            &parent.ID,
			CorrelationID:          parent.CorrelationID,
			InvokerUserID:          parent.InvokerUserID,
			InvokerUserDisplayName: parent.InvokerUserDisplayName,
			MessageBody:            parent.MessageBody,
			Properties:             parent.Properties,
			Trigger:                parent.Trigger,
		})
	}

	invoker := model.UserRef{ID: parent.InvokerUserID, Name: parent.InvokerUserDisplayName}
	if _, err := o.CreateJobs(ctx, requests, invoker); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to inject pre-completion jobs for parent %s", parent.ID)
	}

	parent.RunningStatus = model.RunningStatusCompleting
	if err := o.retry.Execute(ctx, "mark parent completing", func(ctx context.Context) error {
		return o.repo.Update(ctx, parent)
	}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to mark parent %s completing", parent.ID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "pre-completion jobs injected",
			"parent_job_id", parent.ID,
			"count", len(requests),
		)
	}
	return nil
}

func (o *Orchestrator) loadChildren(ctx context.Context, parentJobID string) ([]*model.Job, error) {
	var children []*model.Job
	if err := o.retry.Execute(ctx, "get child jobs", func(ctx context.Context) error {
		var loadErr error
		children, loadErr = o.repo.GetChildren(ctx, parentJobID)
		return loadErr
	}); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to load children of parent %s", parentJobID)
	}
	return children, nil
}

func (o *Orchestrator) loadJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job *model.Job
	err := o.retry.Execute(ctx, "get job", func(ctx context.Context) error {
		var loadErr error
		job, loadErr = o.repo.GetByID(ctx, jobID)
		return loadErr
	})
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, data.ErrJobNotFound
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to load job %s", jobID)
	}
	return job, nil
}

func allCompleted(children []*model.Job) bool {
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !child.IsComplete() {
			return false
		}
	}
	return true
}
