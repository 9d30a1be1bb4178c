package service

import (
	"context"
	"errors"

	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
)

// cancelledOutcome is recorded on jobs cancelled by an operator.
const cancelledOutcome = "cancelled by request"

// ProcessDeletionRequest handles a deletion message from the admin queue. The
// owner id arrives as an envelope property; the optional deletion-type
// property selects soft deletion. A message without an owner id is logged and
// dropped so the broker does not redeliver it.
func (o *Orchestrator) ProcessDeletionRequest(ctx context.Context, envelope *model.MessageEnvelope) error {
	if envelope == nil {
		return errors.New("envelope is required")
	}

	ownerID, ok := envelope.Property(model.PropertyOwnerID)
	if !ok || ownerID == "" {
		if o.logger != nil {
			o.logger.WarnContext(ctx, "dropping deletion request without owner id property")
		}
		return nil
	}
	deletionType, _ := envelope.Property(model.PropertyDeletionType)

	var deleted int64
	if err := o.retry.Execute(ctx, "delete jobs by owner", func(ctx context.Context) error {
		var delErr error
		deleted, delErr = o.repo.DeleteByOwner(ctx, core.DeleteByOwnerParams{
			OwnerID:      ownerID,
			DeletionType: deletionType,
		})
		return delErr
	}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"failed to delete jobs for owner %s", ownerID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "jobs deleted for owner",
			"owner_id", ownerID,
			"deletion_type", deletionType,
			"count", deleted,
		)
	}
	return nil
}

// CancelJob completes a running job as cancelled and publishes its
// notification. Already-completed jobs are rejected with a conflict so the
// caller learns the cancellation had no effect.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.loadJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job not found: %s", jobID)
		}
		return nil, err
	}

	now := o.timeProvider.Now()
	if !job.Complete(model.CompletionStatusCancelled, cancelledOutcome, now) {
		return nil, apperrors.Conflictf("job %s is already completed", jobID)
	}

	if err := o.retry.Execute(ctx, "cancel job", func(ctx context.Context) error {
		return o.repo.Update(ctx, job)
	}); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to cancel job %s", jobID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "job cancelled", "job_id", job.ID)
	}
	metrics.EmitJobCompleted(o.metrics, model.CompletionStatusCancelled)

	if err := o.publisher.PublishJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob returns a job by id.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.loadJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job not found: %s", jobID)
		}
		return nil, err
	}
	return job, nil
}

// GetJobLogs returns a job's logs, oldest first.
func (o *Orchestrator) GetJobLogs(ctx context.Context, jobID string) ([]*model.JobLog, error) {
	var logs []*model.JobLog
	if err := o.retry.Execute(ctx, "get job logs", func(ctx context.Context) error {
		var loadErr error
		logs, loadErr = o.repo.GetLogs(ctx, jobID)
		return loadErr
	}); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to load logs for job %s", jobID)
	}
	return logs, nil
}
