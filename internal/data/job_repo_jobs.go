package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fundingcalc/jobs-engine/internal/core"
	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

// Create inserts a new job row.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if job.ID == "" {
		return errors.New("job id is required")
	}

	properties, err := marshalProperties(job.Properties)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		job.ID,
		job.JobDefinitionID,
		job.OwnerID,
		job.ParentJobID,
		job.CorrelationID,
		job.InvokerUserID,
		job.InvokerUserDisplayName,
		[]byte(job.MessageBody),
		properties,
		job.ItemCount,
		job.Trigger.Message,
		job.Trigger.EntityID,
		job.Trigger.EntityType,
		string(job.RunningStatus),
		nullableCompletionStatus(job.CompletionStatus),
		job.Outcome,
		job.SupersededByJobID,
		job.CreatedAt,
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("insert job: %w", err))
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job inserted", "id", job.ID, "definition", job.JobDefinitionID)
	}
	return nil
}

// Update writes back a mutated job. The insert-time columns (definition,
// owner, parent, invoker, message) never change after creation. Soft-deleted
// rows are treated as gone and report ErrJobNotFound.
func (r *JobRepo) Update(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job with id is required")
	}

	result, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET running_status = $2,
		    completion_status = $3,
		    outcome = $4,
		    superseded_by_job_id = $5,
		    item_count = $6,
		    completed_at = $7
		WHERE id = $1 AND NOT deleted
	`,
		job.ID,
		string(job.RunningStatus),
		nullableCompletionStatus(job.CompletionStatus),
		job.Outcome,
		job.SupersededByJobID,
		job.ItemCount,
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("update job: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetByID returns one job or ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("job id is required")
	}

	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND NOT deleted`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, apperrors.MapDBError(fmt.Errorf("get job by id: %w", err))
	}
	return job, nil
}

// GetChildren returns all jobs whose parent is the given job id.
func (r *JobRepo) GetChildren(ctx context.Context, parentJobID string) ([]*model.Job, error) {
	if strings.TrimSpace(parentJobID) == "" {
		return nil, errors.New("parent job id is required")
	}

	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE parent_job_id = $1
		  AND NOT deleted
		ORDER BY created_at ASC, id ASC
	`, parentJobID)
}

// GetRunningByOwnerAndDefinition returns non-completed jobs for one owner and
// job type, newest first. Used by supersession.
func (r *JobRepo) GetRunningByOwnerAndDefinition(
	ctx context.Context,
	ownerID, jobDefinitionID string,
) ([]*model.Job, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(jobDefinitionID) == "" {
		return nil, errors.New("owner id and job definition id are required")
	}

	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE owner_id = $1
		  AND job_definition_id = $2
		  AND running_status <> 'completed'
		  AND NOT deleted
		ORDER BY created_at DESC, id DESC
	`, ownerID, jobDefinitionID)
}

// GetNonCompleted returns every job that has not reached a terminal state.
// Used by the timeout sweep.
func (r *JobRepo) GetNonCompleted(ctx context.Context) ([]*model.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE running_status <> 'completed'
		  AND NOT deleted
		ORDER BY created_at ASC, id ASC
	`)
}

// DeleteByOwner removes all jobs (and their logs, via cascade) for one owner.
// DeletionType "soft" flags rows instead of removing them.
func (r *JobRepo) DeleteByOwner(ctx context.Context, params core.DeleteByOwnerParams) (int64, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return 0, errors.New("owner id is required")
	}

	var (
		result sql.Result
		err    error
	)
	if params.DeletionType == "soft" {
		result, err = r.DB.ExecContext(ctx,
			`UPDATE jobs SET deleted = TRUE WHERE owner_id = $1 AND NOT deleted`, params.OwnerID)
	} else {
		result, err = r.DB.ExecContext(ctx, `DELETE FROM jobs WHERE owner_id = $1`, params.OwnerID)
	}
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete jobs by owner: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete jobs rows affected: %w", err)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "jobs deleted by owner",
			"owner_id", params.OwnerID,
			"deletion_type", params.DeletionType,
			"count", affected,
		)
	}
	return affected, nil
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("query jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
