package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/fundingcalc/jobs-engine/internal/errors"
	"github.com/fundingcalc/jobs-engine/internal/domain/model"
)

const jobLogColumns = `
  id,
  job_id,
  items_processed,
  items_succeeded,
  items_failed,
  outcome,
  completed_successfully,
  timestamp
`

// CreateLog appends one job log row. Logs are append-only and never updated.
func (r *JobRepo) CreateLog(ctx context.Context, log *model.JobLog) error {
	if log == nil {
		return errors.New("job log is required")
	}
	if log.ID == "" || log.JobID == "" {
		return errors.New("job log id and job id are required")
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO job_logs (`+jobLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		log.ID,
		log.JobID,
		log.ItemsProcessed,
		log.ItemsSucceeded,
		log.ItemsFailed,
		log.Outcome,
		log.CompletedSuccessfully,
		log.Timestamp,
	)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("insert job log: %w", err))
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job log appended", "id", log.ID, "job_id", log.JobID)
	}
	return nil
}

// GetLogs returns all logs for one job, oldest first.
func (r *JobRepo) GetLogs(ctx context.Context, jobID string) ([]*model.JobLog, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobLogColumns+`
		FROM job_logs
		WHERE job_id = $1
		ORDER BY timestamp ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("query job logs: %w", err))
	}
	defer rows.Close()

	var logs []*model.JobLog
	for rows.Next() {
		var log model.JobLog
		if scanErr := rows.Scan(
			&log.ID,
			&log.JobID,
			&log.ItemsProcessed,
			&log.ItemsSucceeded,
			&log.ItemsFailed,
			&log.Outcome,
			&log.CompletedSuccessfully,
			&log.Timestamp,
		); scanErr != nil {
			return nil, fmt.Errorf("scan job log: %w", scanErr)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job logs: %w", err)
	}
	return logs, nil
}
