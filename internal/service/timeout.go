package service

import (
	"context"

	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
)

// timedOutOutcome is recorded on jobs closed by the sweep.
const timedOutOutcome = "job exceeded its definition timeout"

// CheckAndProcessTimedOutJobs scans every non-completed job and completes as
// timed out those whose age exceeds their definition's timeout.
//
// Timed-out jobs are completed directly; parent aggregation for them happens
// later when their notifications flow back through the consumer. The sweep is
// idempotent: a job already completed by a concurrent path is skipped.
func (o *Orchestrator) CheckAndProcessTimedOutJobs(ctx context.Context) (int, error) {
	started := o.timeProvider.Now()

	var candidates []*model.Job
	if err := o.retry.Execute(ctx, "get non-completed jobs", func(ctx context.Context) error {
		var loadErr error
		candidates, loadErr = o.repo.GetNonCompleted(ctx)
		return loadErr
	}); err != nil {
		wrapped := apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load non-completed jobs")
		metrics.EmitSweep(o.metrics, 0, 0, o.timeProvider.Now().Sub(started), wrapped)
		return 0, wrapped
	}

	now := o.timeProvider.Now()
	timedOut := 0
	var firstErr error

	for _, job := range candidates {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}

		definition, err := o.catalog.GetByID(ctx, job.JobDefinitionID)
		if err != nil {
			if o.logger != nil {
				o.logger.WarnContext(ctx, "skipping job with unknown definition during sweep",
					"job_id", job.ID,
					"definition", job.JobDefinitionID,
				)
			}
			continue
		}
		if definition.Timeout <= 0 || now.Sub(job.CreatedAt) <= definition.Timeout {
			continue
		}

		if err := o.timeOutJob(ctx, job); err != nil {
			// Keep sweeping; the next pass retries this job.
			if o.logger != nil {
				o.logger.ErrorContext(ctx, "failed to time out job",
					"job_id", job.ID,
					"error", err,
				)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		timedOut++
	}

	metrics.EmitSweep(o.metrics, len(candidates), timedOut, o.timeProvider.Now().Sub(started), firstErr)
	if o.logger != nil && (timedOut > 0 || firstErr != nil) {
		o.logger.InfoContext(ctx, "timeout sweep finished",
			"inspected", len(candidates),
			"timed_out", timedOut,
			"error", firstErr,
		)
	}
	return timedOut, firstErr
}

func (o *Orchestrator) timeOutJob(ctx context.Context, job *model.Job) error {
	if !job.Complete(model.CompletionStatusTimedOut, timedOutOutcome, o.timeProvider.Now()) {
		return nil
	}
	if err := o.retry.Execute(ctx, "time out job", func(ctx context.Context) error {
		return o.repo.Update(ctx, job)
	}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to persist timeout for job %s", job.ID)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "job timed out",
			"job_id", job.ID,
			"definition", job.JobDefinitionID,
			"created_at", job.CreatedAt,
		)
	}
	metrics.EmitJobCompleted(o.metrics, model.CompletionStatusTimedOut)

	return o.publisher.PublishJob(ctx, job)
}
