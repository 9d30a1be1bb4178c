package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fundingcalc/jobs-engine/internal/data"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
	"github.com/fundingcalc/jobs-engine/internal/observability/metrics"
)

// AddJobLog ingests a worker's progress or completion report.
//
// A terminal update (CompletedSuccessfully present) completes the job as
// succeeded or failed; a non-terminal update moves a queued job to
// in-progress. The log row is always appended, then a notification carrying
// the log's counters is published.
func (o *Orchestrator) AddJobLog(
	ctx context.Context,
	jobID string,
	update model.JobLogUpdate,
) (*model.JobLog, error) {
	var job *model.Job
	if err := o.retry.Execute(ctx, "get job", func(ctx context.Context) error {
		var getErr error
		job, getErr = o.repo.GetByID(ctx, jobID)
		return getErr
	}); err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job not found: %s", jobID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load job")
	}

	now := o.timeProvider.Now()
	changed := o.applyLogUpdate(job, &update, now)

	if changed {
		if err := o.retry.Execute(ctx, "update job status", func(ctx context.Context) error {
			return o.repo.Update(ctx, job)
		}); err != nil {
			// The log is not written when the status update fails; the worker
			// will redeliver its report.
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
				"failed to update job %s from log", jobID)
		}
		if job.IsComplete() {
			metrics.EmitJobCompleted(o.metrics, *job.CompletionStatus)
		}
	}

	log := &model.JobLog{
		ID:                    uuid.NewString(),
		JobID:                 job.ID,
		ItemsProcessed:        update.ItemsProcessed,
		ItemsSucceeded:        update.ItemsSucceeded,
		ItemsFailed:           update.ItemsFailed,
		Outcome:               update.Outcome,
		CompletedSuccessfully: update.CompletedSuccessfully,
		Timestamp:             now,
	}

	if err := o.retry.Execute(ctx, "append job log", func(ctx context.Context) error {
		return o.repo.CreateLog(ctx, log)
	}); err != nil {
		// A terminal report that was not durably recorded must not be
		// silently dropped.
		return nil, fmt.Errorf("failed to append log for job %s: %w", jobID, err)
	}

	metrics.EmitJobLogAppended(o.metrics, update.IsTerminal())
	if o.logger != nil {
		o.logger.DebugContext(ctx, "job log ingested",
			"job_id", job.ID,
			"log_id", log.ID,
			"terminal", update.IsTerminal(),
			"running_status", job.RunningStatus,
		)
	}

	if err := o.publisher.PublishJobLog(ctx, job, log); err != nil {
		return nil, err
	}
	return log, nil
}

// applyLogUpdate mutates the job per the update and reports whether anything
// changed. Completed jobs are never reopened. A terminal update stamps the
// job with the same instant recorded on the log row.
func (o *Orchestrator) applyLogUpdate(job *model.Job, update *model.JobLogUpdate, now time.Time) bool {
	if update.IsTerminal() {
		status := model.CompletionStatusFailed
		if *update.CompletedSuccessfully {
			status = model.CompletionStatusSucceeded
		}
		outcome := ""
		if update.Outcome != nil {
			outcome = *update.Outcome
		}
		return job.Complete(status, outcome, now)
	}

	if !job.IsComplete() && job.RunningStatus != model.RunningStatusInProgress {
		job.RunningStatus = model.RunningStatusInProgress
		return true
	}
	return false
}
